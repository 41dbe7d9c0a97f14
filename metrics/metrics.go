// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/always-cache/fetchpipe/cache"
)

const namespace = "fetchpipe"

// Metrics implements fetchpipe.Observer.
type Metrics struct {
	// Cache metrics
	CacheLookups   *prometheus.CounterVec
	CacheStores    prometheus.Counter
	StoredBytes    prometheus.Counter
	CacheEvictions prometheus.Counter
	EvictedBytes   prometheus.Counter

	// Pipeline metrics
	Actions *prometheus.CounterVec

	// Transport metrics
	TransportDuration prometheus.Histogram
	TransportErrors   prometheus.Counter

	factory promauto.Factory
}

// NewMetrics registers the collectors with reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by result (hit, miss, stale, bypass)",
			},
			[]string{"result"},
		),
		CacheStores: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_stores_total",
				Help:      "Responses stored in the cache",
			},
		),
		StoredBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_stored_bytes_total",
				Help:      "Body bytes stored in the cache",
			},
		),
		CacheEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evictions_total",
				Help:      "Entries evicted to respect the cache budget",
			},
		),
		EvictedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_evicted_bytes_total",
				Help:      "Body bytes evicted from the cache",
			},
		),
		Actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Pipeline outcomes by kind (allow, block, redirect, modified, abort)",
			},
			[]string{"kind"},
		),
		TransportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transport_duration_seconds",
				Help:      "Network fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		TransportErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_errors_total",
				Help:      "Network fetches that failed",
			},
		),
	}
}

// TrackCache exports the current size and entry count of c.
func (m *Metrics) TrackCache(c *cache.HttpCache) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Body bytes currently held by the cache",
		},
		func() float64 { return float64(c.Size()) },
	)
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the cache",
		},
		func() float64 { return float64(c.Len()) },
	)
}

func (m *Metrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheStored(sizeBytes int64) {
	m.CacheStores.Inc()
	m.StoredBytes.Add(float64(sizeBytes))
}

func (m *Metrics) Action(kind string) {
	m.Actions.WithLabelValues(kind).Inc()
}

func (m *Metrics) TransportDone(duration time.Duration, err error) {
	m.TransportDuration.Observe(duration.Seconds())
	if err != nil {
		m.TransportErrors.Inc()
	}
}

// Evicted is meant for cache.Config.OnEvict.
func (m *Metrics) Evicted(entry cache.CacheEntry) {
	m.CacheEvictions.Inc()
	m.EvictedBytes.Add(float64(entry.SizeBytes))
}
