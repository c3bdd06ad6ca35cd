package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/court-registry/internal/infrastructure/resilience"
)

const (
	DefaultSubject    = "registry.documents.extract"
	DefaultQueueGroup = "extract-workers"

	publishedAtHeader = "Registry-Published-At"
)

type Queue struct {
	conn        *nats.Conn
	subject     string
	queueGroup  string
	concurrency int
	executor    *resilience.Executor
	logger      *slog.Logger
	onLag       func(time.Duration)
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor

	QueueGroup string
	// Concurrency bounds in-flight handler calls for this subscriber.
	Concurrency int
	// LagObserver receives the publish-to-delivery delay of every message.
	LagObserver func(time.Duration)
	Logger      *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	concurrency := max(options.Concurrency, 1)
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("court-registry"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		queueGroup:  queueGroup,
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
		logger:      logger,
		onLag:       options.LagObserver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishExtractionRequested(ctx context.Context, documentID string) error {
	call := func(_ context.Context) error {
		msg := nats.NewMsg(q.subject)
		msg.Data = []byte(documentID)
		msg.Header.Set(publishedAtHeader, strconv.FormatInt(time.Now().UnixNano(), 10))
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeExtractionRequested blocks until ctx is done. Deliveries run on
// their own goroutines, at most concurrency at a time. Handlers get a context
// that survives ctx cancellation so an in-flight attempt can still commit its
// outcome while the subscription drains.
func (q *Queue) SubscribeExtractionRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sem := make(chan struct{}, q.concurrency)
	var inFlight sync.WaitGroup
	handlerCtx := context.WithoutCancel(ctx)

	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		documentID := string(msg.Data)
		q.observeLag(msg)

		// Blocking here applies backpressure to the subscription's pending buffer.
		sem <- struct{}{}
		inFlight.Go(func() {
			defer func() { <-sem }()
			if err := handler(handlerCtx, documentID); err != nil {
				q.logger.Error("extraction_handler_failed", "document_id", documentID, "error", err)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("nats_subscribed", "subject", q.subject, "queue_group", q.queueGroup, "concurrency", q.concurrency)

	<-ctx.Done()
	// Messages already delivered to this subscriber are still handled while draining.
	drainErr := sub.Drain()
	if drainErr == nil {
		waitDrained(sub)
	}
	inFlight.Wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func waitDrained(sub *nats.Subscription) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for sub.IsValid() {
		<-ticker.C
	}
}

func (q *Queue) observeLag(msg *nats.Msg) {
	if q.onLag == nil || msg.Header == nil {
		return
	}
	raw := msg.Header.Get(publishedAtHeader)
	if raw == "" {
		return
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	if lag := time.Since(time.Unix(0, nanos)); lag >= 0 {
		q.onLag(lag)
	}
}
