package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/semcache/semcache/cache"
)

// StatsSource is the slice of the cache the monitor observes. The cache
// itself satisfies it; tests substitute a fixture.
type StatsSource interface {
	Stats() cache.Stats
}

// Monitor publishes cache statistics to Prometheus. It owns its registry so
// multiple monitors can coexist in one process.
type Monitor struct {
	registry *prometheus.Registry
	logger   *zap.SugaredLogger
}

// NewMonitor registers a collector for source on a fresh registry.
func NewMonitor(namespace string, source StatsSource, logger *zap.SugaredLogger) (*Monitor, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(NewCollector(namespace, source)); err != nil {
		return nil, err
	}
	return &Monitor{registry: registry, logger: logger}, nil
}

// Handler returns the scrape endpoint for this monitor's registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Collector pulls a stats snapshot on every scrape and emits it as const
// metrics, so the cache carries no Prometheus types of its own.
type Collector struct {
	source StatsSource

	hits           *prometheus.Desc
	misses         *prometheus.Desc
	sets           *prometheus.Desc
	evictions      *prometheus.Desc
	entries        *prometheus.Desc
	memoryBytes    *prometheus.Desc
	hitRate        *prometheus.Desc
	averageLatency *prometheus.Desc
}

func NewCollector(namespace string, source StatsSource) *Collector {
	return &Collector{
		source: source,
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Total number of cache hits", nil, nil),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Total number of cache misses", nil, nil),
		sets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "sets_total"),
			"Total number of cache stores", nil, nil),
		evictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "evictions_total"),
			"Total number of cache evictions by reason", []string{"reason"}, nil),
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "entries"),
			"Current number of live cache entries", nil, nil),
		memoryBytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "memory_bytes"),
			"Recorded size of live cache entries in bytes", nil, nil),
		hitRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "hit_rate"),
			"Ratio of hits to total lookups", nil, nil),
		averageLatency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "cache", "lookup_latency_seconds"),
			"Rolling average lookup latency in seconds", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.sets
	ch <- c.evictions
	ch <- c.entries
	ch <- c.memoryBytes
	ch <- c.hitRate
	ch <- c.averageLatency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(stats.Sets))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.LRUEvictions), "lru")
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.MemoryEvictions), "memory")
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.TTLEvictions), "ttl")
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(stats.Entries))
	ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, float64(stats.MemoryBytes))
	ch <- prometheus.MustNewConstMetric(c.hitRate, prometheus.GaugeValue, stats.HitRate)
	ch <- prometheus.MustNewConstMetric(c.averageLatency, prometheus.GaugeValue, stats.AverageLatency.Seconds())
}
