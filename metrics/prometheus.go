package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bridgify/agingcache/core"
)

// =============================================================================
// PrometheusObserver: 캐시 이벤트를 Prometheus 지표로 기록
// =============================================================================

// PrometheusConfig는 Prometheus 지표 설정입니다.
type PrometheusConfig struct {
	// Namespace는 지표 이름 앞부분입니다. (기본: "agingcache")
	Namespace string

	// Subsystem은 지표 이름 중간 부분입니다.
	Subsystem string

	// Registerer는 지표를 등록할 곳입니다. nil이면 prometheus.DefaultRegisterer입니다.
	Registerer prometheus.Registerer
}

// DefaultPrometheusConfig는 기본 설정을 반환합니다.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{Namespace: "agingcache"}
}

// PrometheusObserver는 core.Observer를 구현하는 Prometheus 지표 묶음입니다.
type PrometheusObserver struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	getResults    *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	purges        *prometheus.CounterVec
	purgeDuration prometheus.Histogram
	purgeEvicted  prometheus.Counter
	propagations  *prometheus.CounterVec
}

// NewPrometheusObserver는 지표를 만들어 등록합니다.
func NewPrometheusObserver(config *PrometheusConfig) (*PrometheusObserver, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}
	registerer := config.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns, sub := config.Namespace, config.Subsystem

	o := &PrometheusObserver{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "operations_total",
				Help:      "Total number of cache operations by write status",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "operation_duration_seconds",
				Help:      "Duration of cache operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			},
			[]string{"operation"},
		),
		getResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "get_requests_total",
				Help:      "Total number of get requests by result and serving level",
			},
			[]string{"result", "level"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "evictions_total",
				Help:      "Total number of eviction attempts by write status",
			},
			[]string{"status"},
		),
		purges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "purges_total",
				Help:      "Total number of purge runs",
			},
			[]string{"result"},
		),
		purgeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "purge_duration_seconds",
				Help:      "Duration of purge runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
		purgeEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "purged_entries_total",
				Help:      "Total number of entries removed by purge runs",
			},
		),
		propagations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "propagations_total",
				Help:      "Total number of observed level updates applied below",
			},
			[]string{"level", "kind", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		o.requests, o.duration, o.getResults, o.evictions,
		o.purges, o.purgeDuration, o.purgeEvicted, o.propagations,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register metric error: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnGet(key any, level int, hit bool, latency time.Duration) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.getResults.WithLabelValues(result, strconv.Itoa(level)).Inc()
	o.requests.WithLabelValues("get", result).Inc()
	o.duration.WithLabelValues("get").Observe(latency.Seconds())
}

func (o *PrometheusObserver) OnSet(key any, status core.WriteStatus, latency time.Duration) {
	o.requests.WithLabelValues("set", status.String()).Inc()
	o.duration.WithLabelValues("set").Observe(latency.Seconds())
}

func (o *PrometheusObserver) OnDelete(key any, status core.WriteStatus, latency time.Duration) {
	o.requests.WithLabelValues("delete", status.String()).Inc()
	o.duration.WithLabelValues("delete").Observe(latency.Seconds())
}

func (o *PrometheusObserver) OnEviction(key any, status core.WriteStatus) {
	o.evictions.WithLabelValues(status.String()).Inc()
}

func (o *PrometheusObserver) OnPurge(evicted int, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.purges.WithLabelValues(result).Inc()
	o.purgeDuration.Observe(duration.Seconds())
	o.purgeEvicted.Add(float64(evicted))
}

func (o *PrometheusObserver) OnPropagation(level int, key any, deleted bool, status core.WriteStatus) {
	kind := "set"
	if deleted {
		kind = "delete"
	}
	o.propagations.WithLabelValues(strconv.Itoa(level), kind, status.String()).Inc()
}

var _ core.Observer = (*PrometheusObserver)(nil)

// =============================================================================
// LevelCollector: 계층별 통계를 수집 시점에 내보내는 Collector
// =============================================================================

// StatsSource는 계층별 통계를 제공합니다. *core.Hierarchy가 구현합니다.
type StatsSource interface {
	Stats() []core.LevelStats
}

// LevelCollector는 prometheus.Collector입니다. 수집할 때마다 Stats()를 읽습니다.
type LevelCollector struct {
	source StatsSource

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	errors       *prometheus.Desc
	rejected     *prometheus.Desc
	sets         *prometheus.Desc
	deletes      *prometheus.Desc
	getLatency   *prometheus.Desc
	writeLatency *prometheus.Desc
}

// NewLevelCollector는 LevelCollector를 생성합니다. 등록은 호출자가 합니다.
func NewLevelCollector(namespace string, source StatsSource) *LevelCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "level", name),
			help,
			[]string{"level", "persistable", "subscribable"},
			nil,
		)
	}

	return &LevelCollector{
		source:       source,
		hits:         desc("hits_total", "Reads served by the level"),
		misses:       desc("misses_total", "Reads that missed at the level"),
		errors:       desc("errors_total", "Provider errors at the level"),
		rejected:     desc("rejected_total", "Writes rejected by the level"),
		sets:         desc("sets_total", "Accepted writes at the level"),
		deletes:      desc("deletes_total", "Accepted deletes at the level"),
		getLatency:   desc("get_latency_seconds", "Average read latency at the level"),
		writeLatency: desc("write_latency_seconds", "Average write latency at the level"),
	}
}

func (c *LevelCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hits, c.misses, c.errors, c.rejected, c.sets, c.deletes, c.getLatency, c.writeLatency,
	} {
		ch <- d
	}
}

func (c *LevelCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.Stats() {
		labels := []string{strconv.Itoa(s.Level), strconv.FormatBool(s.Persistable), strconv.FormatBool(s.Subscribable)}

		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits), labels...)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses), labels...)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors), labels...)
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected), labels...)
		ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(s.Sets), labels...)
		ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(s.Deletes), labels...)
		ch <- prometheus.MustNewConstMetric(c.getLatency, prometheus.GaugeValue, time.Duration(s.GetLatencyNs).Seconds(), labels...)
		ch <- prometheus.MustNewConstMetric(c.writeLatency, prometheus.GaugeValue, time.Duration(s.WriteLatencyNs).Seconds(), labels...)
	}
}

var _ prometheus.Collector = (*LevelCollector)(nil)
