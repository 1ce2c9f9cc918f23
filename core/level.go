// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 개별 저장 계층(Level)을 관리합니다.
package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// =============================================================================
// Level: 개별 저장 계층
// =============================================================================
// Level은 하나의 StorageProvider를 감싸고 계층 번호와 메트릭을 관리합니다.
// 여러 Level이 모여 StorageHierarchy를 구성합니다.
// =============================================================================

// Level은 계층 하나를 나타냅니다.
type Level[K comparable, V any] struct {
	// index는 계층 번호입니다. 0이 가장 빠른 계층입니다.
	index int

	// provider는 실제 저장소 백엔드입니다.
	provider StorageProvider[K, V]

	// ==========================================================================
	// 메트릭 (atomic으로 락 없이 업데이트)
	// ==========================================================================
	hits        uint64 // 조회 히트 횟수
	misses      uint64 // 조회 미스 횟수
	errors      uint64 // 프로바이더 에러 횟수
	rejected    uint64 // false로 거절된 쓰기 횟수
	getLatency  int64  // 총 Get 지연 시간 (나노초)
	getCount    uint64 // Get 호출 횟수
	setLatency  int64  // 총 Set/Delete 지연 시간 (나노초)
	setCount    uint64 // Set 호출 횟수
	deleteCount uint64 // Delete 호출 횟수
}

// newLevel은 새로운 계층을 생성합니다.
func newLevel[K comparable, V any](index int, provider StorageProvider[K, V]) *Level[K, V] {
	return &Level[K, V]{
		index:    index,
		provider: provider,
	}
}

// Index는 계층 번호를 반환합니다.
func (l *Level[K, V]) Index() int {
	return l.index
}

// Provider는 내부 프로바이더를 반환합니다.
func (l *Level[K, V]) Provider() StorageProvider[K, V] {
	return l.provider
}

// Subscribable은 프로바이더가 구독을 지원하는지 반환합니다.
func (l *Level[K, V]) Subscribable() bool {
	_, ok := AsSubscribable(l.provider)
	return ok
}

// =============================================================================
// Level CRUD 연산 (메트릭 수집 포함)
// =============================================================================

// Get은 키를 조회합니다.
func (l *Level[K, V]) Get(ctx context.Context, key K) (*AgedValue[V], error) {
	start := time.Now()

	value, err := l.provider.Get(ctx, key)

	atomic.AddInt64(&l.getLatency, time.Since(start).Nanoseconds())
	atomic.AddUint64(&l.getCount, 1)

	if err != nil {
		atomic.AddUint64(&l.errors, 1)
		return nil, fmt.Errorf("level %d get error: %w", l.index, err)
	}

	if value == nil {
		atomic.AddUint64(&l.misses, 1)
		return nil, nil
	}

	atomic.AddUint64(&l.hits, 1)
	return value, nil
}

// Set은 값을 저장합니다.
func (l *Level[K, V]) Set(ctx context.Context, key K, value AgedValue[V]) (bool, error) {
	start := time.Now()

	ok, err := l.provider.Set(ctx, key, value)

	atomic.AddInt64(&l.setLatency, time.Since(start).Nanoseconds())
	atomic.AddUint64(&l.setCount, 1)

	return l.record(ok, err, "set")
}

// Delete는 키를 삭제합니다.
func (l *Level[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	start := time.Now()

	ok, err := l.provider.Delete(ctx, key)

	atomic.AddInt64(&l.setLatency, time.Since(start).Nanoseconds())
	atomic.AddUint64(&l.deleteCount, 1)

	return l.record(ok, err, "delete")
}

func (l *Level[K, V]) record(ok bool, err error, op string) (bool, error) {
	if err != nil {
		atomic.AddUint64(&l.errors, 1)
		return false, fmt.Errorf("level %d %s error: %w", l.index, op, err)
	}
	if !ok {
		atomic.AddUint64(&l.rejected, 1)
	}
	return ok, nil
}

// =============================================================================
// Level 메트릭
// =============================================================================

// Stats는 계층의 통계를 반환합니다.
func (l *Level[K, V]) Stats() LevelStats {
	getCount := atomic.LoadUint64(&l.getCount)
	writeCount := atomic.LoadUint64(&l.setCount) + atomic.LoadUint64(&l.deleteCount)

	var avgGet, avgWrite int64
	if getCount > 0 {
		avgGet = atomic.LoadInt64(&l.getLatency) / int64(getCount)
	}
	if writeCount > 0 {
		avgWrite = atomic.LoadInt64(&l.setLatency) / int64(writeCount)
	}

	return LevelStats{
		Level:          l.index,
		Persistable:    l.provider.IsPersistable(),
		Subscribable:   l.Subscribable(),
		Hits:           atomic.LoadUint64(&l.hits),
		Misses:         atomic.LoadUint64(&l.misses),
		Errors:         atomic.LoadUint64(&l.errors),
		Rejected:       atomic.LoadUint64(&l.rejected),
		Sets:           atomic.LoadUint64(&l.setCount),
		Deletes:        atomic.LoadUint64(&l.deleteCount),
		GetLatencyNs:   avgGet,
		WriteLatencyNs: avgWrite,
	}
}

// LevelStats는 계층의 통계 정보를 담습니다.
type LevelStats struct {
	Level          int    `json:"level"`
	Persistable    bool   `json:"persistable"`
	Subscribable   bool   `json:"subscribable"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	Errors         uint64 `json:"errors"`
	Rejected       uint64 `json:"rejected"`
	Sets           uint64 `json:"sets"`
	Deletes        uint64 `json:"deletes"`
	GetLatencyNs   int64  `json:"get_latency_ns"`
	WriteLatencyNs int64  `json:"write_latency_ns"`
}

// HitRate는 히트율을 반환합니다 (0.0 ~ 1.0).
func (s LevelStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
