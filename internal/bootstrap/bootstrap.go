package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/court-registry/internal/config"
	"github.com/kirillkom/court-registry/internal/core/ports"
	"github.com/kirillkom/court-registry/internal/core/usecase"
	"github.com/kirillkom/court-registry/internal/infrastructure/extractor/pdfnative"
	"github.com/kirillkom/court-registry/internal/infrastructure/extractor/pdftotext"
	"github.com/kirillkom/court-registry/internal/infrastructure/ocr"
	"github.com/kirillkom/court-registry/internal/infrastructure/ocr/gosseract"
	"github.com/kirillkom/court-registry/internal/infrastructure/ocr/pdftoppm"
	"github.com/kirillkom/court-registry/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/court-registry/internal/infrastructure/pdfinfo"
	"github.com/kirillkom/court-registry/internal/infrastructure/process"
	"github.com/kirillkom/court-registry/internal/infrastructure/queue/nats"
	"github.com/kirillkom/court-registry/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/court-registry/internal/infrastructure/resilience"
	"github.com/kirillkom/court-registry/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/court-registry/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue    *nats.Queue
	Repo     ports.DocumentRepository
	Storage  ports.ObjectStorage
	IngestUC *usecase.IngestDocumentUseCase

	// Worker-only wiring; nil in the api process.
	ExtractUC     *usecase.ExtractDocumentUseCase
	SweepUC       *usecase.SweepStuckUseCase
	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

// New wires the pieces shared by the api and the worker: store, blob
// storage, queue and the upload use case.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	return newApp(ctx, cfg, logger, nil)
}

// NewWorker additionally builds the extraction toolchain and fails fast when
// a configured binary is missing.
func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	workerMetrics := metrics.NewWorkerMetrics("worker")

	app, err := newApp(ctx, cfg, logger, workerMetrics)
	if err != nil {
		return nil, err
	}

	extractor, engine, tools, err := buildExtractionPipeline(cfg, logger, workerMetrics)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := process.Check(tools...); err != nil {
		app.Close()
		return nil, fmt.Errorf("extraction toolchain: %w", err)
	}

	app.WorkerMetrics = workerMetrics
	app.ExtractUC = usecase.NewExtractDocumentUseCase(app.Repo, app.Storage, extractor, engine, usecase.ExtractOptions{
		AttemptTimeout: cfg.ExtractTimeout,
		CommitTimeout:  cfg.CommitTimeout,
		Metrics:        workerMetrics,
		Logger:         logger,
	})
	app.SweepUC = usecase.NewSweepStuckUseCase(app.Repo, app.Queue, usecase.SweepOptions{
		StuckAfter: cfg.StuckAfter,
		BatchSize:  cfg.SweepBatch,
		RatePerSec: cfg.SweepRatePerSec,
		Observer:   workerMetrics,
		Logger:     logger,
	})
	logger.Info("extraction_pipeline_ready",
		"extractor", cfg.TextExtractor,
		"recognizer", cfg.OCRRecognizer,
		"languages", cfg.OCRLanguages,
		"dpi", cfg.OCRDPI,
		"tools", tools,
	)
	return app, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, workerMetrics *metrics.WorkerMetrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db, executor)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queueOpts := nats.Options{
		ResilienceExecutor: executor,
		QueueGroup:         cfg.NATSQueueGroup,
		Concurrency:        cfg.WorkerConcurrency,
		Logger:             logger,
	}
	if workerMetrics != nil {
		queueOpts.LagObserver = workerMetrics.ObserveQueueLag
	}
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, queueOpts)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Queue:    queue,
		Repo:     repo,
		Storage:  storage,
		IngestUC: usecase.NewIngestDocumentUseCase(repo, storage, queue),
		closeFn: func() {
			queue.Close()
			closeDB(db, logger)
		},
	}, nil
}

func buildExtractionPipeline(
	cfg config.Config,
	logger *slog.Logger,
	observer ocr.PageObserver,
) (ports.TextExtractor, ports.OCREngine, []string, error) {
	runner := process.NewRunner(cfg.ToolTimeout)
	var tools []string

	var extractor ports.TextExtractor
	switch cfg.TextExtractor {
	case config.ExtractorNative:
		extractor = pdfnative.NewExtractor(cfg.NativeMaxPages)
	default:
		pdftotextExtractor := pdftotext.NewExtractor(runner, cfg.PdftotextPath)
		tools = append(tools, pdftotextExtractor.Binary())
		extractor = pdftotextExtractor
	}

	rasterizer := pdftoppm.NewRasterizer(runner, cfg.PdftoppmPath)
	tools = append(tools, rasterizer.Binary())

	var recognizer ports.PageRecognizer
	switch cfg.OCRRecognizer {
	case config.RecognizerGosseract:
		if !gosseract.Available {
			return nil, nil, nil, fmt.Errorf("OCR_RECOGNIZER=gosseract requires a build with -tags ocr")
		}
		recognizer = gosseract.NewRecognizer(cfg.OCRDPI)
	default:
		tesseractRecognizer := tesseract.NewRecognizer(runner, cfg.TesseractPath, cfg.OCRDPI)
		tools = append(tools, tesseractRecognizer.Binary())
		recognizer = tesseractRecognizer
	}

	if err := os.MkdirAll(cfg.OCRWorkDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create ocr work dir: %w", err)
	}
	engine := ocr.NewEngine(rasterizer, recognizer, ocr.Options{
		WorkDir:   cfg.OCRWorkDir,
		DPI:       cfg.OCRDPI,
		Languages: cfg.OCRLanguages,
		Counter:   pdfinfo.NewCounter(),
		Observer:  observer,
		Logger:    logger,
	})
	return extractor, engine, tools, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.BreakerOpenTimeout,
	}
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("postgres_close_failed", "error", err)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
