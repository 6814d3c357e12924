package attendance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records admission outcomes. A nil *Metrics records nothing.
type Metrics struct {
	admissions *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics registers the admission collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "foodforge_admissions_total",
			Help: "Scan admissions by outcome and meal.",
		}, []string{"outcome", "meal"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "foodforge_admission_duration_seconds",
			Help:    "Time spent deciding a scan admission.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.admissions, m.duration)
	return m
}

func (m *Metrics) observe(res Result, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "admitted"
	if !res.Success {
		outcome = string(res.Reason)
	}
	m.admissions.WithLabelValues(outcome, string(res.Meal)).Inc()
	m.duration.Observe(took.Seconds())
}
