package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/court-registry/internal/bootstrap"
	"github.com/kirillkom/court-registry/internal/config"
	"github.com/kirillkom/court-registry/internal/core/ports"
	"github.com/kirillkom/court-registry/internal/infrastructure/ocr"
	"github.com/kirillkom/court-registry/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewWorker(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Leftovers from a crashed process are older than any live attempt.
	if removed, err := ocr.RemoveStale(cfg.OCRWorkDir, cfg.ExtractTimeout+time.Minute); err != nil {
		logger.Warn("ocr_workdir_cleanup_failed", "dir", cfg.OCRWorkDir, "error", err)
	} else if removed > 0 {
		logger.Info("ocr_workdir_cleaned", "dir", cfg.OCRWorkDir, "removed", removed)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("worker_subscribed",
			"subject", cfg.NATSSubject,
			"queue_group", cfg.NATSQueueGroup,
			"concurrency", cfg.WorkerConcurrency,
		)
		return app.Queue.SubscribeExtractionRequested(groupCtx, app.ExtractUC.ExtractByID)
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if cfg.SweepInterval > 0 {
		group.Go(func() error {
			runSweepLoop(groupCtx, app.SweepUC, cfg.SweepInterval, logger)
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}

func metricsMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.WorkerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func runSweepLoop(ctx context.Context, sweeper ports.StuckSweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if requeued, err := sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("stuck_sweep_failed", "requeued", requeued, "error", err)
		}
	}
}
