package usecase

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/court-registry/internal/core/domain"
	"github.com/kirillkom/court-registry/internal/core/ports"
)

// PDF readers accept the header anywhere in the first kilobyte.
const pdfHeaderWindow = 1024

var pdfMagic = []byte("%PDF-")

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Upload stores the PDF, records a pending document and requests extraction.
// When only the publish fails, the pending document is returned together with
// the error; the stalled sweep re-dispatches it later.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	meta domain.Metadata,
	body io.Reader,
) (*domain.Document, error) {
	if !looksLikePDFUpload(filename, mimeType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("%q is not a pdf (content type %q)", filename, mimeType))
	}
	reader := bufio.NewReaderSize(body, pdfHeaderWindow)
	head, err := reader.Peek(pdfHeaderWindow)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("empty file"))
	}
	if !bytes.Contains(head, pdfMagic) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("missing %PDF- header"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, reader); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:            id,
		Filename:      filename,
		FilePath:      storageKey,
		Metadata:      trimMetadata(meta),
		ExtractStatus: domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), storageKey); delErr != nil {
			slog.Warn("orphaned_upload_not_removed", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishExtractionRequested(ctx, doc.ID); err != nil {
		return doc, fmt.Errorf("publish extraction request for %s: %w", doc.ID, err)
	}

	return doc, nil
}

// Reextract requests a fresh attempt for an existing document. The new
// attempt overwrites whatever outcome the row currently holds.
func (uc *IngestDocumentUseCase) Reextract(ctx context.Context, documentID string) error {
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if err := uc.queue.PublishExtractionRequested(ctx, documentID); err != nil {
		return fmt.Errorf("publish extraction request: %w", err)
	}
	return nil
}

func looksLikePDFUpload(filename, mimeType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	mediaType, _, _ := strings.Cut(mimeType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/pdf")
}

func trimMetadata(meta domain.Metadata) domain.Metadata {
	return domain.Metadata{
		Division:        strings.TrimSpace(meta.Division),
		CaseType:        strings.TrimSpace(meta.CaseType),
		Judge:           strings.TrimSpace(meta.Judge),
		CaseNumber:      strings.TrimSpace(meta.CaseNumber),
		JudgementNumber: strings.TrimSpace(meta.JudgementNumber),
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.pdf"
	}
	return base
}
