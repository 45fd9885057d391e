// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the subsystem's Prometheus metrics. The registerer
// is injected so tests can use isolated registries without
// duplicate-registration panics.
type Collector struct {
	stores       *prometheus.CounterVec
	retrieved    *prometheus.CounterVec
	forgotten    *prometheus.CounterVec
	tierSize     *prometheus.GaugeVec
	consolidTime prometheus.Histogram
}

// NewCollector registers the metric set with reg. Pass
// prometheus.DefaultRegisterer for production use.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		stores: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "stores_total",
			Help:      "Records written, by tier.",
		}, []string{"tier"}),
		retrieved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "retrieved_total",
			Help:      "Records returned by retrieval, by tier.",
		}, []string{"tier"}),
		forgotten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "forgotten_total",
			Help:      "Records removed by forgetting, by tier.",
		}, []string{"tier"}),
		tierSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentmem",
			Name:      "tier_size",
			Help:      "Current record count, by tier.",
		}, []string{"tier"}),
		consolidTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentmem",
			Name:      "consolidation_duration_seconds",
			Help:      "Wall time of consolidation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NopCollector returns a collector backed by a throwaway registry, for
// callers that do not want metrics.
func NopCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

func (c *Collector) RecordStore(tier string) {
	c.stores.WithLabelValues(tier).Inc()
}

func (c *Collector) RecordRetrieved(tier string, n int) {
	c.retrieved.WithLabelValues(tier).Add(float64(n))
}

func (c *Collector) RecordForgotten(tier string, n int) {
	c.forgotten.WithLabelValues(tier).Add(float64(n))
}

func (c *Collector) SetTierSize(tier string, n int) {
	c.tierSize.WithLabelValues(tier).Set(float64(n))
}

func (c *Collector) ObserveConsolidation(d time.Duration) {
	c.consolidTime.Observe(d.Seconds())
}
