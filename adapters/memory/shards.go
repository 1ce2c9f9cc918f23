// Package memory는 인메모리 저장소 프로바이더를 구현합니다.
// 이 파일은 락 경합을 줄이기 위한 샤딩된 맵을 구현합니다.
package memory

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
)

// =============================================================================
// shardedMap: 샤딩된 맵
// =============================================================================
// 256개 샤드로 분할하여 락 경합을 최소화합니다.
// 각 샤드는 독립적인 맵과 락을 가집니다.
// 전체 항목 수는 count로 따로 유지하여 크기 제한을 샤드 락 안에서 검사합니다.
// =============================================================================

const (
	shardCount = 256
	shardMask  = shardCount - 1
)

type shardedMap[K comparable, V any] struct {
	shards [shardCount]*mapShard[K, V]
	seed   maphash.Seed
	count  atomic.Int64
}

type mapShard[K comparable, V any] struct {
	items map[K]V
	mu    sync.RWMutex
}

func newShardedMap[K comparable, V any]() *shardedMap[K, V] {
	m := &shardedMap[K, V]{seed: maphash.MakeSeed()}
	for i := 0; i < shardCount; i++ {
		m.shards[i] = &mapShard[K, V]{items: make(map[K]V)}
	}
	return m
}

// shard는 키에 해당하는 샤드를 반환합니다.
func (m *shardedMap[K, V]) shard(key K) *mapShard[K, V] {
	return m.shards[maphash.Comparable(m.seed, key)&shardMask]
}

func (m *shardedMap[K, V]) get(key K) (V, bool) {
	s := m.shard(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

func (m *shardedMap[K, V]) set(key K, value V) {
	m.setLimited(key, value, 0)
}

// setLimited는 새 키가 들어올 자리가 없으면 false를 반환합니다. limit이 0 이하면 무제한입니다.
// 기존 키 갱신은 항상 성공합니다.
func (m *shardedMap[K, V]) setLimited(key K, value V, limit int) bool {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists && !m.reserve(limit) {
		return false
	}
	s.items[key] = value
	return true
}

// reserve는 새 항목 하나의 자리를 확보합니다.
func (m *shardedMap[K, V]) reserve(limit int) bool {
	if limit <= 0 {
		m.count.Add(1)
		return true
	}
	for {
		n := m.count.Load()
		if n >= int64(limit) {
			return false
		}
		if m.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (m *shardedMap[K, V]) delete(key K) bool {
	s := m.shard(key)
	s.mu.Lock()
	_, ok := s.items[key]
	if ok {
		delete(s.items, key)
		m.count.Add(-1)
	}
	s.mu.Unlock()
	return ok
}

func (m *shardedMap[K, V]) keys() []K {
	result := make([]K, 0, m.len())
	for _, s := range m.shards {
		s.mu.RLock()
		for k := range s.items {
			result = append(result, k)
		}
		s.mu.RUnlock()
	}
	return result
}

func (m *shardedMap[K, V]) len() int {
	return int(m.count.Load())
}

func (m *shardedMap[K, V]) clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		m.count.Add(-int64(len(s.items)))
		s.items = make(map[K]V)
		s.mu.Unlock()
	}
}
