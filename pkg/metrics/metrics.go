// Package metrics exposes Prometheus counters for the billing flows on a
// dedicated registry. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeRolledBack = "rolled_back"
	OutcomeOutOfDate  = "out_of_date"
)

// Collector groups the billing metric vectors.
type Collector struct {
	registry *prometheus.Registry

	CheckoutAttempts *prometheus.CounterVec
	CheckoutDuration *prometheus.HistogramVec
	RenewalChanges   *prometheus.CounterVec
	RemoteRetries    *prometheus.CounterVec
	RemoteFailures   *prometheus.CounterVec
}

// New creates a Collector registered on its own registry.
func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		CheckoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Checkout attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		CheckoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "duration_seconds",
			Help:      "Time until a checkout attempt resolved",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		RenewalChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "renewal",
			Name:      "changes_total",
			Help:      "Auto-renewal toggles by provider and outcome",
		}, []string{"provider", "outcome"}),
		RemoteRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Retried remote calls by operation",
		}, []string{"operation"}),
		RemoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "failures_total",
			Help:      "Terminal remote failures by provider and error kind",
		}, []string{"provider", "kind"}),
	}
	reg.MustRegister(
		c.CheckoutAttempts,
		c.CheckoutDuration,
		c.RenewalChanges,
		c.RemoteRetries,
		c.RemoteFailures,
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CheckoutAttempt(provider, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.CheckoutAttempts.WithLabelValues(provider, outcome).Inc()
	if outcome != OutcomeSuperseded {
		c.CheckoutDuration.WithLabelValues(provider).Observe(seconds)
	}
}

func (c *Collector) RenewalChange(provider, outcome string) {
	if c == nil {
		return
	}
	c.RenewalChanges.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) Retry(operation string) {
	if c == nil {
		return
	}
	c.RemoteRetries.WithLabelValues(operation).Inc()
}

func (c *Collector) RemoteFailure(provider, kind string) {
	if c == nil {
		return
	}
	c.RemoteFailures.WithLabelValues(provider, kind).Inc()
}
