// Package metrics는 캐시 메트릭 수집을 구현합니다.
// Collector는 프로세스 안에서 조회하는 통계를, Prometheus 타입들은
// 외부 수집용 지표를 제공합니다. 모두 core.Observer로 캐시에 연결됩니다.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bridgify/agingcache/core"
)

// =============================================================================
// Collector: 프로세스 내 메트릭 수집기
// =============================================================================
// Collector는 캐시 이벤트를 원자적 카운터로 집계합니다.
// core.WithObserver(collector)로 연결하고 Stats()로 조회합니다.
// =============================================================================

// latencyBounds는 지연 시간 히스토그램 버킷 경계입니다. 마지막 버킷은 그 이상입니다.
var latencyBounds = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// Collector는 메트릭 수집기입니다.
type Collector struct {
	totalGets      atomic.Uint64
	totalSets      atomic.Uint64
	totalDeletes   atomic.Uint64
	totalHits      atomic.Uint64
	totalMisses    atomic.Uint64
	totalEvictions atomic.Uint64
	failedWrites   atomic.Uint64
	totalPurges    atomic.Uint64
	propagations   atomic.Uint64

	// 지연 시간 합 (나노초)
	getLatencySum    atomic.Int64
	setLatencySum    atomic.Int64
	deleteLatencySum atomic.Int64

	// getLatencyBuckets는 [<1ms, 1-5ms, 5-10ms, 10-50ms, 50-100ms, >=100ms]입니다.
	getLatencyBuckets []atomic.Int64

	// levelHits는 계층별 히트 수입니다.
	levelHits map[int]*atomic.Uint64

	mu sync.RWMutex
}

// New는 새로운 메트릭 수집기를 생성합니다.
func New() *Collector {
	return &Collector{
		getLatencyBuckets: make([]atomic.Int64, len(latencyBounds)+1),
		levelHits:         make(map[int]*atomic.Uint64),
	}
}

// =============================================================================
// core.Observer 구현
// =============================================================================

func (c *Collector) OnGet(key any, level int, hit bool, latency time.Duration) {
	c.totalGets.Add(1)
	c.getLatencySum.Add(latency.Nanoseconds())
	c.getLatencyBuckets[bucketIndex(latency)].Add(1)

	if !hit {
		c.totalMisses.Add(1)
		return
	}
	c.totalHits.Add(1)
	c.levelCounter(level).Add(1)
}

func (c *Collector) OnSet(key any, status core.WriteStatus, latency time.Duration) {
	c.totalSets.Add(1)
	c.setLatencySum.Add(latency.Nanoseconds())
	if !status.IsSuccess() {
		c.failedWrites.Add(1)
	}
}

func (c *Collector) OnDelete(key any, status core.WriteStatus, latency time.Duration) {
	c.totalDeletes.Add(1)
	c.deleteLatencySum.Add(latency.Nanoseconds())
	if !status.IsSuccess() {
		c.failedWrites.Add(1)
	}
}

// OnEviction은 실제로 지워진 퇴거만 셉니다. Refreshed는 값이 남아 있으므로 제외합니다.
func (c *Collector) OnEviction(key any, status core.WriteStatus) {
	if status == core.Success {
		c.totalEvictions.Add(1)
	}
}

func (c *Collector) OnPurge(evicted int, duration time.Duration, err error) {
	c.totalPurges.Add(1)
}

func (c *Collector) OnPropagation(level int, key any, deleted bool, status core.WriteStatus) {
	c.propagations.Add(1)
}

// =============================================================================
// Collector 내부 헬퍼
// =============================================================================

func (c *Collector) levelCounter(level int) *atomic.Uint64 {
	c.mu.RLock()
	counter, ok := c.levelHits[level]
	c.mu.RUnlock()
	if ok {
		return counter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok = c.levelHits[level]; !ok {
		counter = &atomic.Uint64{}
		c.levelHits[level] = counter
	}
	return counter
}

func bucketIndex(latency time.Duration) int {
	for i, bound := range latencyBounds {
		if latency < bound {
			return i
		}
	}
	return len(latencyBounds)
}

// =============================================================================
// Collector 메트릭 조회
// =============================================================================

// Stats는 수집된 메트릭의 스냅샷입니다.
type Stats struct {
	TotalGets      uint64  `json:"total_gets"`
	TotalSets      uint64  `json:"total_sets"`
	TotalDeletes   uint64  `json:"total_deletes"`
	TotalHits      uint64  `json:"total_hits"`
	TotalMisses    uint64  `json:"total_misses"`
	TotalEvictions uint64  `json:"total_evictions"`
	FailedWrites   uint64  `json:"failed_writes"`
	TotalPurges    uint64  `json:"total_purges"`
	Propagations   uint64  `json:"propagations"`
	HitRate        float64 `json:"hit_rate"`

	// 지연 시간 (밀리초)
	AvgGetLatencyMs    float64 `json:"avg_get_latency_ms"`
	AvgSetLatencyMs    float64 `json:"avg_set_latency_ms"`
	AvgDeleteLatencyMs float64 `json:"avg_delete_latency_ms"`

	// LevelHits는 값을 찾은 계층별 히트 수입니다.
	LevelHits map[int]uint64 `json:"level_hits"`

	// GetLatencyDistribution은 Get 지연 시간 분포(퍼센트)입니다.
	GetLatencyDistribution []float64 `json:"get_latency_distribution"`
}

// Stats는 현재 메트릭을 반환합니다.
func (c *Collector) Stats() *Stats {
	hits := c.totalHits.Load()
	misses := c.totalMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	levelHits := make(map[int]uint64)
	c.mu.RLock()
	for level, counter := range c.levelHits {
		levelHits[level] = counter.Load()
	}
	c.mu.RUnlock()

	return &Stats{
		TotalGets:              c.totalGets.Load(),
		TotalSets:              c.totalSets.Load(),
		TotalDeletes:           c.totalDeletes.Load(),
		TotalHits:              hits,
		TotalMisses:            misses,
		TotalEvictions:         c.totalEvictions.Load(),
		FailedWrites:           c.failedWrites.Load(),
		TotalPurges:            c.totalPurges.Load(),
		Propagations:           c.propagations.Load(),
		HitRate:                hitRate,
		AvgGetLatencyMs:        averageMs(c.getLatencySum.Load(), c.totalGets.Load()),
		AvgSetLatencyMs:        averageMs(c.setLatencySum.Load(), c.totalSets.Load()),
		AvgDeleteLatencyMs:     averageMs(c.deleteLatencySum.Load(), c.totalDeletes.Load()),
		LevelHits:              levelHits,
		GetLatencyDistribution: c.distribution(),
	}
}

func averageMs(sumNs int64, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(sumNs) / float64(count) / 1_000_000
}

func (c *Collector) distribution() []float64 {
	dist := make([]float64, len(c.getLatencyBuckets))

	var total int64
	for i := range c.getLatencyBuckets {
		total += c.getLatencyBuckets[i].Load()
	}
	if total == 0 {
		return dist
	}

	for i := range c.getLatencyBuckets {
		dist[i] = float64(c.getLatencyBuckets[i].Load()) / float64(total) * 100
	}
	return dist
}

// Reset은 모든 메트릭을 초기화합니다.
func (c *Collector) Reset() {
	for _, counter := range []*atomic.Uint64{
		&c.totalGets, &c.totalSets, &c.totalDeletes, &c.totalHits, &c.totalMisses,
		&c.totalEvictions, &c.failedWrites, &c.totalPurges, &c.propagations,
	} {
		counter.Store(0)
	}
	c.getLatencySum.Store(0)
	c.setLatencySum.Store(0)
	c.deleteLatencySum.Store(0)
	for i := range c.getLatencyBuckets {
		c.getLatencyBuckets[i].Store(0)
	}

	c.mu.Lock()
	c.levelHits = make(map[int]*atomic.Uint64)
	c.mu.Unlock()
}

var _ core.Observer = (*Collector)(nil)
