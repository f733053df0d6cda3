// Package metrics holds the Prometheus collectors pyqc updates while running
// checks and gate decisions. Each Metrics owns its registry so runs and
// tests never share counters; the registry can be dumped in the node
// exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "pyqc"

// Metrics is safe for concurrent use
type Metrics struct {
	registry *prometheus.Registry

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	pairFailures       *prometheus.CounterVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	gateDecisions      *prometheus.CounterVec
	gateDuration       prometheus.Histogram
}

// New creates a fresh registry with every pyqc collector registered
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checker_invocations_total",
			Help:      "External checker processes started",
		}, []string{"checker"}),
		invocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checker_invocation_duration_seconds",
			Help:      "Wall time of one checker invocation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"checker"}),
		pairFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pair_failures_total",
			Help:      "(file, checker) pairs that did not complete",
		}, []string{"checker", "kind"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Pairs answered from the result cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Pairs that required a checker invocation",
		}),
		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Commit gate decisions",
		}, []string{"outcome", "reason"}),
		gateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_duration_seconds",
			Help:      "Time from commit detection to decision",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveInvocation counts one checker process and its duration
func (m *Metrics) ObserveInvocation(checker string, d time.Duration) {
	m.invocations.WithLabelValues(checker).Inc()
	m.invocationDuration.WithLabelValues(checker).Observe(d.Seconds())
}

// PairFailed counts a pair that ended in an error of kind
func (m *Metrics) PairFailed(checker, kind string) {
	m.pairFailures.WithLabelValues(checker, kind).Inc()
}

func (m *Metrics) CacheHit() { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

// GateDecided records a gate outcome
func (m *Metrics) GateDecided(outcome, reason string, d time.Duration) {
	m.gateDecisions.WithLabelValues(outcome, reason).Inc()
	m.gateDuration.Observe(d.Seconds())
}

// Invocations returns the invocation count for checker
func (m *Metrics) Invocations(checker string) int {
	return int(counterValue(m.invocations.WithLabelValues(checker)))
}

// CacheCounts returns the hit and miss counters
func (m *Metrics) CacheCounts() (hits, misses int) {
	return int(counterValue(m.cacheHits)), int(counterValue(m.cacheMisses))
}

// WriteTextfile atomically writes every metric to path for a textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
