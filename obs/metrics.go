package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess     = "success"
	OutcomeCompensated = "compensated"
	// OutcomeFailed means at least one undo failed.
	OutcomeFailed = "failed"

	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics counts saga runs and compensations.
type Metrics struct {
	sagas         *prometheus.CounterVec
	compensations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sagas: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboard_sagas_total",
				Help: "Onboarding sagas by outcome.",
			},
			[]string{"saga", "outcome"},
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onboard_compensations_total",
				Help: "Undo steps run while compensating, by result.",
			},
			[]string{"step", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onboard_saga_duration_seconds",
				Help:    "Onboarding saga latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"saga"},
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.sagas, m.compensations, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) ObserveSaga(saga, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sagas.WithLabelValues(saga, outcome).Inc()
	m.duration.WithLabelValues(saga).Observe(took.Seconds())
}

func (m *Metrics) ObserveUndo(step string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.compensations.WithLabelValues(step, result).Inc()
}
