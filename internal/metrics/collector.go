// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes the cache subsystem's Prometheus metrics.
type Collector struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	policyRejections *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec

	reapDuration  prometheus.Histogram
	reapedEntries prometheus.Counter
	memoryEntries prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates a collector registered under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"tier"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"tier"},
	)

	c.policyRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_policy_rejections_total",
			Help:      "Total number of answers rejected by the cache policy",
		},
		[]string{"rule"},
	)

	c.storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_store_errors_total",
			Help:      "Total number of persistent store failures",
		},
		[]string{"operation"},
	)

	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_store_op_duration_seconds",
			Help:      "Persistent store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation"},
	)

	c.reapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_reap_duration_seconds",
			Help:      "Memory tier reap sweep duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.reapedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reaped_entries_total",
			Help:      "Total number of entries removed by the reaper",
		},
	)

	c.memoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_memory_entries",
			Help:      "Current number of entries in the memory tier",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHit records a cache hit on the given tier.
func (c *Collector) RecordHit(tier string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(tier).Inc()
}

// RecordMiss records a cache miss on the given tier.
func (c *Collector) RecordMiss(tier string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(tier).Inc()
}

// RecordPolicyRejection records a policy rejection by rule name.
func (c *Collector) RecordPolicyRejection(rule string) {
	if c == nil {
		return
	}
	c.policyRejections.WithLabelValues(rule).Inc()
}

// RecordStoreError records a persistent store failure for an operation.
func (c *Collector) RecordStoreError(operation string) {
	if c == nil {
		return
	}
	c.storeErrors.WithLabelValues(operation).Inc()
}

// ObserveStoreOp records the duration of a persistent store operation.
func (c *Collector) ObserveStoreOp(operation string, d time.Duration) {
	if c == nil {
		return
	}
	c.storeOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveReap records a reap sweep and how many entries it removed.
func (c *Collector) ObserveReap(d time.Duration, removed int) {
	if c == nil {
		return
	}
	c.reapDuration.Observe(d.Seconds())
	c.reapedEntries.Add(float64(removed))
}

// SetMemoryEntries updates the memory tier size gauge.
func (c *Collector) SetMemoryEntries(n int) {
	if c == nil {
		return
	}
	c.memoryEntries.Set(float64(n))
}
