package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit-trail module.
type Metrics struct {
	CapturesTotal   *prometheus.CounterVec
	NoopCaptures    prometheus.Counter
	PartialSkips    prometheus.Counter
	CaptureDuration prometheus.Histogram
	ListDuration    prometheus.Histogram
	DetailDuration  prometheus.Histogram
	OutboxPublished prometheus.Counter
	OutboxRetries   prometheus.Counter
}

// New creates a Metrics instance with all audit-trail metrics registered.
func New() *Metrics {
	return &Metrics{
		CapturesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_audit_captures_total",
			Help: "Audit log headers written, by operation kind",
		}, []string{"operation"}),
		NoopCaptures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_noop_captures_total",
			Help: "Capture calls whose diff was empty (no record written)",
		}),
		PartialSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_partial_skips_total",
			Help: "Attributes dropped from a diff because formatting failed",
		}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_audit_capture_duration_seconds",
			Help:    "Duration of capture calls including the transactional write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_audit_list_duration_seconds",
			Help:    "Duration of header list queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		DetailDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_audit_detail_duration_seconds",
			Help:    "Duration of detail queries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_outbox_published_total",
			Help: "Outbox rows successfully relayed to the event stream",
		}),
		OutboxRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_outbox_retries_total",
			Help: "Outbox rows whose publish attempt failed and will retry",
		}),
	}
}

// ObserveCapture records the duration of a capture call.
func (m *Metrics) ObserveCapture(start time.Time) {
	m.CaptureDuration.Observe(time.Since(start).Seconds())
}

// ObserveList records the duration of a header list query.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}

// ObserveDetail records the duration of a detail query.
func (m *Metrics) ObserveDetail(start time.Time) {
	m.DetailDuration.Observe(time.Since(start).Seconds())
}
