package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/always-cache/fetchpipe"
	"github.com/always-cache/fetchpipe/cache"
)

var _ fetchpipe.Observer = (*Metrics)(nil)

func TestObserverCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheLookup(fetchpipe.LookupHit)
	m.CacheLookup(fetchpipe.LookupHit)
	m.CacheLookup(fetchpipe.LookupMiss)
	m.CacheStored(512)
	m.Action("block")
	m.TransportDone(10*time.Millisecond, nil)
	m.TransportDone(20*time.Millisecond, errors.New("refused"))

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 {
		t.Fatalf("Expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 1 {
		t.Fatalf("Expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoredBytes); got != 512 {
		t.Fatalf("Expected 512 stored bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.Actions.WithLabelValues("block")); got != 1 {
		t.Fatalf("Expected 1 block, got %v", got)
	}
	if got := testutil.ToFloat64(m.TransportErrors); got != 1 {
		t.Fatalf("Expected 1 transport error, got %v", got)
	}
}

func TestCacheTracking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := cache.CreateCache(cache.Config{MaxMemoryBytes: 1000, OnEvict: m.Evicted})
	m.TrackCache(c)

	header := http.Header{"Cache-Control": {"max-age=60"}}
	c.Put("https://example.com/a", make([]byte, 600), header)
	c.Put("https://example.com/b", make([]byte, 600), header)

	if got := testutil.ToFloat64(m.CacheEvictions); got != 1 {
		t.Fatalf("Expected 1 eviction, got %v", got)
	}
	if got := testutil.ToFloat64(m.EvictedBytes); got != 600 {
		t.Fatalf("Expected 600 evicted bytes, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, family := range families {
		if family.GetName() == "fetchpipe_cache_bytes" {
			if got := family.GetMetric()[0].GetGauge().GetValue(); got != 600 {
				t.Fatalf("Expected cache gauge 600, got %v", got)
			}
			return
		}
	}
	t.Fatal("Expected fetchpipe_cache_bytes to be registered")
}
