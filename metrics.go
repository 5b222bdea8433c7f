package sysvipc

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the executor's Prometheus collectors.
type Metrics struct {
	Applied  prometheus.Counter
	Retries  prometheus.Counter
	Failures *prometheus.CounterVec
}

// NewMetrics creates the executor collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Applied: factory.NewCounter(prometheus.CounterOpts{
			Name: "sysvipc_semop_applied_total",
			Help: "Semaphore requests accepted by the kernel",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "sysvipc_semop_retries_total",
			Help: "Semaphore requests resubmitted after a refusal",
		}),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sysvipc_semop_failures_total",
				Help: "Semaphore operation lists that failed, by error kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) applied() {
	if m != nil {
		m.Applied.Inc()
	}
}

func (m *Metrics) retried() {
	if m != nil {
		m.Retries.Inc()
	}
}

func (m *Metrics) failed(kind error) {
	if m != nil {
		m.Failures.WithLabelValues(kindLabel(kind)).Inc()
	}
}

func kindLabel(kind error) string {
	switch {
	case errors.Is(kind, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(kind, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(kind, ErrInterrupted):
		return "interrupted"
	case errors.Is(kind, ErrNotFound):
		return "not_found"
	default:
		return "kernel_rejected"
	}
}
