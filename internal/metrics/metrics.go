package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokenbank"

// Outcome labels.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// Metrics holds the client's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	signatures  *prometheus.CounterVec
	submissions *prometheus.CounterVec
	events      *prometheus.CounterVec
	receiptWait prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		signatures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_generated_total",
			Help:      "Typed data signatures produced by the connected wallet",
		}, []string{"primary_type"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Signature consuming transactions by contract method and outcome",
		}, []string{"method", "outcome"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "events_observed_total",
			Help:      "Market events decoded by the watcher",
		}, []string{"kind"}),
		receiptWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_wait_seconds",
			Help:      "Time from broadcast to receipt",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

func (m *Metrics) SignatureGenerated(primaryType string) {
	if m == nil {
		return
	}
	m.signatures.WithLabelValues(primaryType).Inc()
}

func (m *Metrics) Submitted(method, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) EventObserved(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReceiptWait(d time.Duration) {
	if m == nil {
		return
	}
	m.receiptWait.Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
