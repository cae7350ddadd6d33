// Package metrics exposes Prometheus collectors for the execute path.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes used as the "outcome" label
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the collectors updated by the handlers
type Metrics struct {
	registry *prometheus.Registry

	Executions     *prometheus.CounterVec
	WriteDuration  *prometheus.HistogramVec
	LifecycleCalls *prometheus.CounterVec
}

// New creates a registry with the Go and process collectors plus the
// service collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}

	m := &Metrics{
		registry: reg,
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_logger_executions_total",
			Help: "Execute calls by writer strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		WriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journey_logger_write_duration_seconds",
			Help:    "Latency of data extension writes, including token acquisition.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),
		LifecycleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_logger_lifecycle_calls_total",
			Help: "Configuration lifecycle calls by event.",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{m.Executions, m.WriteDuration, m.LifecycleCalls} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	return m, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
