// Package metrics holds the Prometheus collectors for capability calls,
// delegate calls and invocations. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several hosts can coexist in one
// process (and in tests) without duplicate registration panics.
type Collector struct {
	registry *prometheus.Registry

	capabilityCalls    *prometheus.CounterVec
	delegateCalls      *prometheus.CounterVec
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
}

// NewCollector creates collectors under namespace (default "hostbridge").
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "hostbridge"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.capabilityCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "Capability bridge calls by capability and outcome",
		},
		[]string{"capability", "outcome"},
	)

	c.delegateCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delegate",
			Name:      "calls_total",
			Help:      "Delegate calls by outcome (ok, app_error, infra_error, unavailable)",
		},
		[]string{"outcome"},
	)

	c.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invocation",
			Name:      "total",
			Help:      "Top-level invocations by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	c.invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invocation",
			Name:      "duration_seconds",
			Help:      "Wall time of top-level invocations",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"mode"},
	)

	c.registry.MustRegister(
		c.capabilityCalls,
		c.delegateCalls,
		c.invocations,
		c.invocationDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CapabilityCall(capability, outcome string) {
	if c == nil {
		return
	}
	c.capabilityCalls.WithLabelValues(capability, outcome).Inc()
}

func (c *Collector) DelegateCall(outcome string) {
	if c == nil {
		return
	}
	c.delegateCalls.WithLabelValues(outcome).Inc()
}

func (c *Collector) Invocation(mode, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.invocations.WithLabelValues(mode, outcome).Inc()
	c.invocationDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// CapabilityCounter exposes the underlying counter for tests.
func (c *Collector) CapabilityCounter(capability, outcome string) prometheus.Counter {
	return c.capabilityCalls.WithLabelValues(capability, outcome)
}

func (c *Collector) DelegateCounter(outcome string) prometheus.Counter {
	return c.delegateCalls.WithLabelValues(outcome)
}

func (c *Collector) InvocationCounter(mode, outcome string) prometheus.Counter {
	return c.invocations.WithLabelValues(mode, outcome)
}
