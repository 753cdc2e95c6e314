package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed at GET /metrics.
type Metrics struct {
	AssignmentRequests *prometheus.CounterVec
	EvaluationDuration  *prometheus.HistogramVec
	SnapshotAge         prometheus.GaugeFunc
}

// NewMetrics registers this server's collectors against the default
// Prometheus registry via promauto, matching the corpus's preferred
// registration idiom.
func NewMetrics(snapshotAge func() time.Duration) *Metrics {
	return &Metrics{
		AssignmentRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "assignment_requests_total",
			Help:      "Total number of /user assignment requests, by outcome.",
		}, []string{"outcome"}),

		EvaluationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "needle",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of evaluating one experiment during a report run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"experiment"}),

		SnapshotAge: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "report_snapshot_age_seconds",
			Help:      "Age of the most recently published report snapshot.",
		}, func() float64 {
			return snapshotAge().Seconds()
		}),
	}
}

// ObserveEvaluation satisfies internal/report.MetricsRecorder.
func (m *Metrics) ObserveEvaluation(experiment string, d time.Duration) {
	m.EvaluationDuration.WithLabelValues(experiment).Observe(d.Seconds())
}
