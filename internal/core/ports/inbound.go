package ports

import (
	"context"
	"io"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

// DocumentIngestor is the inbound contract for uploads entering the extraction pipeline.
// Upload returns the stored document together with the error when only the
// extraction request could not be published.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, meta domain.Metadata, body io.Reader) (*domain.Document, error)
	Reextract(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentExtractor drives one document through the extraction state machine.
type DocumentExtractor interface {
	ExtractByID(ctx context.Context, documentID string) error
}

// StuckSweeper re-dispatches documents left in processing by a crashed attempt.
type StuckSweeper interface {
	Sweep(ctx context.Context) (int, error)
}
