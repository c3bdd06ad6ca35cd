package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
	"github.com/kirillkom/court-registry/internal/core/ports"
)

const (
	defaultAttemptTimeout = 20 * time.Minute
	defaultCommitTimeout  = 15 * time.Second
)

type ExtractOptions struct {
	// AttemptTimeout bounds resolve, direct extraction and OCR together.
	AttemptTimeout time.Duration
	// CommitTimeout bounds the terminal write, which runs detached from the attempt deadline.
	CommitTimeout time.Duration
	Metrics       ports.ExtractionMetrics
	Logger        *slog.Logger
}

// ExtractDocumentUseCase moves one document through
// pending/processing/done|failed. Extraction failures are recorded on the
// row; only store failures are returned to the caller.
type ExtractDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	ocr       ports.OCREngine

	attemptTimeout time.Duration
	commitTimeout  time.Duration
	metrics        ports.ExtractionMetrics
	logger         *slog.Logger
}

func NewExtractDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	ocr ports.OCREngine,
	opts ExtractOptions,
) *ExtractDocumentUseCase {
	uc := &ExtractDocumentUseCase{
		repo:           repo,
		storage:        storage,
		extractor:      extractor,
		ocr:            ocr,
		attemptTimeout: opts.AttemptTimeout,
		commitTimeout:  opts.CommitTimeout,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}
	if uc.attemptTimeout <= 0 {
		uc.attemptTimeout = defaultAttemptTimeout
	}
	if uc.commitTimeout <= 0 {
		uc.commitTimeout = defaultCommitTimeout
	}
	if uc.metrics == nil {
		uc.metrics = noopExtractionMetrics{}
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	return uc
}

func (uc *ExtractDocumentUseCase) ExtractByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.logger.Info("extraction_skipped", "document_id", documentID, "reason", "document_not_found")
			return nil
		}
		return fmt.Errorf("fetch document by id: %w", err)
	}

	if err := uc.repo.MarkProcessing(ctx, documentID); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.logger.Info("extraction_skipped", "document_id", documentID, "reason", "document_deleted")
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	uc.metrics.StartExtraction()
	start := time.Now()
	text, extractErr := uc.attempt(ctx, doc)

	status := domain.StatusDone
	if extractErr != nil {
		status = domain.StatusFailed
	}
	kind := domain.KindOf(extractErr)
	commitErr := uc.commit(ctx, documentID, text, extractErr)
	duration := time.Since(start)
	uc.metrics.FinishExtraction(status, kind, duration)

	if commitErr != nil {
		if domain.IsKind(commitErr, domain.ErrDocumentNotFound) {
			uc.logger.Info("extraction_discarded", "document_id", documentID, "reason", "document_deleted")
			return nil
		}
		uc.logger.Error("extraction_commit_failed",
			"document_id", documentID,
			"status", status,
			"error", commitErr,
		)
		return fmt.Errorf("set status=%s: %w", status, commitErr)
	}

	attrs := []any{
		"document_id", documentID,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	}
	if extractErr != nil {
		uc.logger.Warn("extraction_failed", append(attrs, "error_kind", kind, "error", extractErr)...)
		return nil
	}
	uc.logger.Info("extraction_finished", append(attrs, "chars", len(text))...)
	return nil
}

func (uc *ExtractDocumentUseCase) attempt(ctx context.Context, doc *domain.Document) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, uc.attemptTimeout)
	defer cancel()

	text, err := uc.extractPipeline(attemptCtx, doc)
	if err != nil && !domain.IsKind(err, domain.ErrTimeout) && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = domain.WrapError(domain.ErrTimeout, "extract document", fmt.Errorf("attempt exceeded %s: %w", uc.attemptTimeout, err))
	}
	return text, err
}

func (uc *ExtractDocumentUseCase) extractPipeline(ctx context.Context, doc *domain.Document) (string, error) {
	pdfPath, err := uc.storage.Resolve(ctx, doc.FilePath)
	if err != nil {
		return "", fmt.Errorf("resolve pdf: %w", err)
	}

	raw, err := uc.extractor.ExtractText(ctx, pdfPath)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if text := domain.NormalizeWhitespace(raw); text != "" {
		return text, nil
	}

	uc.metrics.ObserveOCRFallback()
	uc.logger.Info("ocr_fallback_started", "document_id", doc.ID)

	raw, err = uc.ocr.OCR(ctx, pdfPath)
	if err != nil {
		return "", fmt.Errorf("ocr fallback: %w", err)
	}
	text := domain.NormalizeWhitespace(raw)
	if text == "" {
		return "", domain.WrapError(domain.ErrOCREmptyResult, "ocr fallback", errors.New("direct extraction and OCR returned no text"))
	}
	return text, nil
}

func (uc *ExtractDocumentUseCase) commit(ctx context.Context, documentID, text string, extractErr error) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.commitTimeout)
	defer cancel()

	if extractErr != nil {
		return uc.repo.FailExtraction(commitCtx, documentID, domain.KindOf(extractErr), extractErr.Error())
	}
	return uc.repo.CompleteExtraction(commitCtx, documentID, text)
}

type noopExtractionMetrics struct{}

func (noopExtractionMetrics) StartExtraction() {}
func (noopExtractionMetrics) FinishExtraction(domain.ExtractStatus, domain.ErrorKind, time.Duration) {}
func (noopExtractionMetrics) ObserveOCRFallback() {}
func (noopExtractionMetrics) ObserveQueueLag(time.Duration) {}
