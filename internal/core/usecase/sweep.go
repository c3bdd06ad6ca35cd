package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/court-registry/internal/core/ports"
)

type RequeueObserver interface {
	ObserveStuckRequeued(count int)
}

type SweepOptions struct {
	// StuckAfter is how long a pending or processing document may sit idle
	// before it is re-dispatched, and how long before it is re-dispatched again.
	StuckAfter time.Duration
	BatchSize  int
	// RatePerSec paces re-publishing; zero or less means unlimited.
	RatePerSec float64
	Observer   RequeueObserver
	Logger     *slog.Logger
	Now        func() time.Time
}

// SweepStuckUseCase re-dispatches documents that no attempt is driving: uploads
// whose extraction request was lost and attempts that died between the entry
// and terminal commits.
type SweepStuckUseCase struct {
	repo  ports.DocumentRepository
	queue ports.MessageQueue

	stuckAfter time.Duration
	batchSize  int
	limiter    *rate.Limiter
	observer   RequeueObserver
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweepStuckUseCase(repo ports.DocumentRepository, queue ports.MessageQueue, opts SweepOptions) *SweepStuckUseCase {
	uc := &SweepStuckUseCase{
		repo:       repo,
		queue:      queue,
		stuckAfter: opts.StuckAfter,
		batchSize:  opts.BatchSize,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		observer:   opts.Observer,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if opts.RatePerSec > 0 {
		uc.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	if uc.stuckAfter <= 0 {
		uc.stuckAfter = time.Hour
	}
	if uc.batchSize <= 0 {
		uc.batchSize = 100
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	if uc.now == nil {
		uc.now = time.Now
	}
	return uc
}

// Sweep re-publishes one batch and reports how many ids were requeued. Claimed
// ids that could not be published come back after another idle window.
func (uc *SweepStuckUseCase) Sweep(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.stuckAfter)
	ids, err := uc.repo.ClaimStalled(ctx, cutoff, uc.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim stalled documents: %w", err)
	}

	requeued := 0
	var errs []error
	for _, id := range ids {
		if err := uc.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("sweep paced out: %w", err))
			break
		}
		if err := uc.queue.PublishExtractionRequested(ctx, id); err != nil {
			uc.logger.Warn("stuck_requeue_failed", "document_id", id, "error", err)
			errs = append(errs, fmt.Errorf("requeue %s: %w", id, err))
			continue
		}
		requeued++
	}

	if uc.observer != nil {
		uc.observer.ObserveStuckRequeued(requeued)
	}
	if len(ids) > 0 {
		uc.logger.Info("stuck_sweep_finished", "found", len(ids), "requeued", requeued, "cutoff", cutoff)
	}
	return requeued, errors.Join(errs...)
}
