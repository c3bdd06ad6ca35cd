package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	extractTotal     *prometheus.CounterVec
	extractDuration  *prometheus.HistogramVec
	extractInFlight  prometheus.Gauge
	ocrFallbackTotal prometheus.Counter
	ocrPages         prometheus.Histogram
	queueLag         prometheus.Histogram
	stuckRequeued    prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	extractTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "extract_total",
			Help:        "Extraction attempts by terminal status and error kind.",
			ConstLabels: constLabels,
		},
		[]string{"status", "kind"},
	)
	extractDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "extract_duration_seconds",
			Help:        "Extraction attempt duration in seconds by terminal status.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1200},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	extractInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "extract_in_flight",
			Help:        "Number of in-flight extraction attempts.",
			ConstLabels: constLabels,
		},
	)
	ocrFallbackTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "ocr_fallback_total",
			Help:        "Attempts where direct extraction was empty and OCR ran.",
			ConstLabels: constLabels,
		},
	)
	ocrPages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "ocr_pages",
			Help:        "Rendered pages per OCR run.",
			Buckets:     []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			ConstLabels: constLabels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between publish and delivery of an extraction request.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)
	stuckRequeued := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "registry",
			Subsystem:   "worker",
			Name:        "stuck_requeued_total",
			Help:        "Stalled pending or processing documents re-dispatched by the sweep.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(extractTotal, extractDuration, extractInFlight, ocrFallbackTotal, ocrPages, queueLag, stuckRequeued)

	return &WorkerMetrics{
		registry:         registry,
		extractTotal:     extractTotal,
		extractDuration:  extractDuration,
		extractInFlight:  extractInFlight,
		ocrFallbackTotal: ocrFallbackTotal,
		ocrPages:         ocrPages,
		queueLag:         queueLag,
		stuckRequeued:    stuckRequeued,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartExtraction() {
	m.extractInFlight.Inc()
}

func (m *WorkerMetrics) FinishExtraction(status domain.ExtractStatus, kind domain.ErrorKind, duration time.Duration) {
	m.extractInFlight.Dec()

	label := string(kind)
	if label == "" {
		label = "none"
	}
	m.extractTotal.WithLabelValues(string(status), label).Inc()
	m.extractDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveOCRFallback() {
	m.ocrFallbackTotal.Inc()
}

func (m *WorkerMetrics) ObserveOCRPages(pages int) {
	m.ocrPages.Observe(float64(pages))
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveStuckRequeued(count int) {
	if count <= 0 {
		return
	}
	m.stuckRequeued.Add(float64(count))
}
