package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	ExtractionRuns    *prometheus.CounterVec
	ProfileWrites     prometheus.Counter
	ExtractionLatency prometheus.Histogram
	ActiveEnrichments prometheus.Gauge
	WSMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		DecodeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_decode_failures_total",
			Help:      "Checkpoint payload decode failures by role.",
		}, []string{"role"}),
		ExtractionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_extraction_runs_total",
			Help:      "Background profile extraction passes by outcome.",
		}, []string{"outcome"}),
		ProfileWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_writes_total",
			Help:      "Profile upserts that changed the stored document.",
		}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_extraction_latency_ms",
			Help:      "End-to-end latency of a background extraction pass in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		ActiveEnrichments: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_enrichments",
			Help:      "Background enrichment passes currently in flight.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket chat messages by direction.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) ObserveExtractionLatency(d time.Duration) {
	m.ExtractionLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
