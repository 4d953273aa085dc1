// Package metrics exposes Prometheus collectors for pricing runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Observer receives pricing events. The engine depends on this interface so
// tests and library callers can run without a registry.
type Observer interface {
	PricingRun(shape string, d time.Duration)
	FormulaFallback(kind string)
	RepositoryFallback(source string)
}

// Nop discards every event
type Nop struct{}

func (Nop) PricingRun(string, time.Duration) {}
func (Nop) FormulaFallback(string)           {}
func (Nop) RepositoryFallback(string)        {}

// Collectors is the Prometheus-backed Observer
type Collectors struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	fallbacks  *prometheus.CounterVec
	repoErrors *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolboq",
			Name:      "pricing_runs_total",
			Help:      "Number of BOQ pricing runs by pool shape.",
		}, []string{"shape"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poolboq",
			Name:      "pricing_duration_seconds",
			Help:      "Duration of BOQ pricing runs.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"shape"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolboq",
			Name:      "formula_fallbacks_total",
			Help:      "Formulas that degraded to zero, by kind (quantity, unit_cost, variable).",
		}, []string{"kind"}),
		repoErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poolboq",
			Name:      "repository_fallbacks_total",
			Help:      "Loads served from the built-in catalog because the repository failed.",
		}, []string{"source"}),
	}
	c.registry.MustRegister(c.runs, c.duration, c.fallbacks, c.repoErrors)
	c.registry.MustRegister(collectors.NewGoCollector())
	return c
}

// PricingRun records one pricing run
func (c *Collectors) PricingRun(shape string, d time.Duration) {
	c.runs.WithLabelValues(shape).Inc()
	c.duration.WithLabelValues(shape).Observe(d.Seconds())
}

// FormulaFallback records a formula that evaluated to the zero fallback
func (c *Collectors) FormulaFallback(kind string) {
	c.fallbacks.WithLabelValues(kind).Inc()
}

// RepositoryFallback records a load served from defaults
func (c *Collectors) RepositoryFallback(source string) {
	c.repoErrors.WithLabelValues(source).Inc()
}

// Registry returns the underlying registry
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
