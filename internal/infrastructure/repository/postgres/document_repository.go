package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/court-registry/internal/core/domain"
	"github.com/kirillkom/court-registry/internal/infrastructure/resilience"
)

const schemaLockID = int64(2026101501)

type DocumentRepository struct {
	db       *sql.DB
	executor *resilience.Executor
	now      func() time.Time
}

// NewDocumentRepository builds the store. executor may be nil, in which case
// terminal commits run once without retry.
func NewDocumentRepository(db *sql.DB, executor *resilience.Executor) *DocumentRepository {
	return &DocumentRepository{db: db, executor: executor, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// api and worker both bootstrap the schema on start.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	file_path TEXT NOT NULL,
	division TEXT NOT NULL DEFAULT '',
	case_type TEXT NOT NULL DEFAULT '',
	judge TEXT NOT NULL DEFAULT '',
	case_number TEXT NOT NULL DEFAULT '',
	judgement_number TEXT NOT NULL DEFAULT '',
	content_text TEXT,
	extract_status TEXT NOT NULL DEFAULT 'pending',
	extract_error TEXT,
	extract_error_kind TEXT,
	extract_started_at TIMESTAMPTZ,
	dispatched_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT documents_extract_status_check
		CHECK (extract_status IN ('pending', 'processing', 'done', 'failed'))
);

ALTER TABLE documents ADD COLUMN IF NOT EXISTS dispatched_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_documents_extract_status_started
	ON documents(extract_status, extract_started_at);
CREATE INDEX IF NOT EXISTS idx_documents_case_number ON documents(case_number);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if !doc.ExtractStatus.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "insert document", fmt.Errorf("status %q", doc.ExtractStatus))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, file_path, division, case_type, judge, case_number, judgement_number,
	content_text, extract_status, extract_error, extract_error_kind, extract_started_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.Filename, doc.FilePath, doc.Division, doc.CaseType, doc.Judge, doc.CaseNumber, doc.JudgementNumber,
		doc.ContentText, string(doc.ExtractStatus), doc.ExtractError, nullKind(doc.ExtractErrorKind), doc.ExtractStartedAt,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, file_path, division, case_type, judge, case_number, judgement_number,
	content_text, extract_status, extract_error, extract_error_kind, extract_started_at, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var (
		doc       domain.Document
		text      sql.NullString
		status    string
		errText   sql.NullString
		errKind   sql.NullString
		startedAt sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.FilePath, &doc.Division, &doc.CaseType, &doc.Judge, &doc.CaseNumber, &doc.JudgementNumber,
		&text, &status, &errText, &errKind, &startedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.ExtractStatus, err = domain.ParseExtractStatus(status)
	if err != nil {
		return nil, fmt.Errorf("scan document %s: %w", id, err)
	}
	if text.Valid {
		doc.ContentText = &text.String
	}
	if errText.Valid {
		doc.ExtractError = &errText.String
	}
	if errKind.Valid {
		doc.ExtractErrorKind = domain.ParseErrorKind(errKind.String)
	}
	if startedAt.Valid {
		doc.ExtractStartedAt = &startedAt.Time
	}
	return &doc, nil
}

// MarkProcessing is the entry commit of an attempt: it clears the previous
// error and stamps extract_started_at.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extract_status = $2, extract_error = NULL, extract_error_kind = NULL, extract_started_at = $3, updated_at = $3
WHERE id = $1
`, id, string(domain.StatusProcessing), now)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireRow(res, "mark processing", id)
}

func (r *DocumentRepository) CompleteExtraction(ctx context.Context, id, text string) error {
	return r.commit(ctx, "postgres.complete_extraction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extract_status = $2, content_text = $3, extract_error = NULL, extract_error_kind = NULL, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusDone), text, r.now())
		if err != nil {
			return fmt.Errorf("complete extraction: %w", err)
		}
		return requireRow(res, "complete extraction", id)
	})
}

func (r *DocumentRepository) FailExtraction(ctx context.Context, id string, kind domain.ErrorKind, message string) error {
	if kind == domain.KindNone {
		kind = domain.KindInternal
	}
	return r.commit(ctx, "postgres.fail_extraction", func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extract_status = $2, content_text = NULL, extract_error = $3, extract_error_kind = $4, updated_at = $5
WHERE id = $1
`, id, string(domain.StatusFailed), message, string(kind), r.now())
		if err != nil {
			return fmt.Errorf("fail extraction: %w", err)
		}
		return requireRow(res, "fail extraction", id)
	})
}

// ClaimStalled picks pending or processing documents with no activity since
// idleBefore and stamps dispatched_at on them in the same statement. Activity
// is the latest of creation, attempt start and previous re-dispatch, so a row
// is claimed at most once per idle window even while its message is queued.
// Concurrent sweepers skip each other's locked rows.
func (r *DocumentRepository) ClaimStalled(ctx context.Context, idleBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
UPDATE documents
SET dispatched_at = $1
WHERE id IN (
	SELECT id
	FROM documents
	WHERE extract_status IN ($2, $3)
		AND GREATEST(created_at, extract_started_at, dispatched_at) < $4
	ORDER BY GREATEST(created_at, extract_started_at, dispatched_at)
	LIMIT $5
	FOR UPDATE SKIP LOCKED
)
RETURNING id
`, r.now(), string(domain.StatusPending), string(domain.StatusProcessing), idleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim stalled documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stalled document: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled documents: %w", err)
	}
	return ids, nil
}

func (r *DocumentRepository) commit(ctx context.Context, operation string, fn func(context.Context) error) error {
	if r.executor == nil {
		return fn(ctx)
	}
	return r.executor.Execute(ctx, operation, fn, classifyPostgresError)
}

func requireRow(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullKind(kind domain.ErrorKind) any {
	if kind == domain.KindNone {
		return nil
	}
	return string(kind)
}
