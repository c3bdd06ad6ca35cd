package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

// DocumentRepository persists and reads document extraction state.
// Extraction state changes are single-row updates; only ClaimStalled touches
// several rows, and it only stamps dispatch bookkeeping.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	MarkProcessing(ctx context.Context, id string) error
	CompleteExtraction(ctx context.Context, id, text string) error
	FailExtraction(ctx context.Context, id string, kind domain.ErrorKind, message string) error
	// ClaimStalled returns pending or processing ids idle since idleBefore and
	// marks them re-dispatched, so each is claimed once per idle window.
	ClaimStalled(ctx context.Context, idleBefore time.Time, limit int) ([]string, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Resolve(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes extraction requests keyed by document id.
type MessageQueue interface {
	PublishExtractionRequested(ctx context.Context, documentID string) error
	SubscribeExtractionRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// ExtractionMetrics observes orchestrator outcomes. Implementations must be safe for concurrent use.
type ExtractionMetrics interface {
	StartExtraction()
	FinishExtraction(status domain.ExtractStatus, kind domain.ErrorKind, duration time.Duration)
	ObserveOCRFallback()
	ObserveQueueLag(lag time.Duration)
}
