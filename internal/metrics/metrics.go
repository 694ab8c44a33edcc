// Package metrics exports rate limit decisions to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/admission/internal/ratelimit"
)

// Collector implements ratelimit.Observer with Prometheus instruments.
type Collector struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	points    *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewCollector registers the rate limit instruments on a fresh registry.
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by algorithm and outcome.",
		}, []string{"algorithm", "outcome"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_consumed_points_total",
			Help: "Points reported as consumed by decisions.",
		}, []string{"algorithm"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_errors_total",
			Help: "Rate limit calls that failed, by error kind.",
		}, []string{"algorithm", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_decision_duration_seconds",
			Help:    "Time spent producing a decision, store round trip included.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"algorithm"}),
	}

	for _, col := range []prometheus.Collector{c.decisions, c.points, c.errors, c.latency} {
		if err := c.registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) ObserveDecision(algorithm ratelimit.Algorithm, dec ratelimit.Decision, elapsed time.Duration) {
	outcome := "allowed"
	if !dec.Success {
		outcome = "denied"
	}

	c.decisions.WithLabelValues(string(algorithm), outcome).Inc()
	c.points.WithLabelValues(string(algorithm)).Add(dec.ConsumedPoints)
	c.latency.WithLabelValues(string(algorithm)).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveError(algorithm ratelimit.Algorithm, err error) {
	c.errors.WithLabelValues(string(algorithm), errorKind(err)).Inc()
}

// Registry exposes the registry for tests and custom exposition.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ratelimit.ErrConflict):
		return "conflict"
	case errors.Is(err, ratelimit.ErrRecordMismatch):
		return "mismatch"
	case errors.Is(err, ratelimit.ErrStore):
		return "store"
	default:
		return "other"
	}
}

// Compile-time check.
var _ ratelimit.Observer = (*Collector)(nil)
