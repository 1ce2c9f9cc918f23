// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 퇴거 순서를 결정하는 Aged Queue를 구현합니다.
package core

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// =============================================================================
// AgedQueue: 퇴거 순서 큐
// =============================================================================
// AgedQueue는 키마다 age를 추적하고, 가장 오래된 키를 알려줍니다.
// 캐시는 IsNextExpired로 퇴거 시점을 판단하고 Next로 대상을 고릅니다.
// =============================================================================

// AgedQueue는 키의 age를 추적하는 퇴거 큐 인터페이스입니다.
type AgedQueue[K comparable] interface {
	// AddOrReplace는 키를 주어진 age로 추가하거나 다시 넣습니다.
	// 기존 age 버킷에서는 먼저 제거됩니다.
	AddOrReplace(key K, age int64)

	// Next는 가장 작은 age를 가진 키 하나를 반환합니다.
	// 같은 age의 키가 여러 개면 그중 임의의 하나를 반환합니다.
	Next() (K, bool)

	// Delete는 키를 제거합니다. 없으면 아무 작업도 하지 않습니다.
	Delete(key K)

	// IsNextExpired는 퇴거가 필요한지 반환합니다.
	IsNextExpired() bool

	// InitialAge는 새 키의 기본 age를 계산합니다.
	InitialAge(key K) int64

	// UpdateAge는 기존 키의 age를 새로 찍습니다.
	UpdateAge(key K)

	// Compare는 age 전순서입니다.
	Compare(a, b int64) int

	// Size는 추적 중인 키 개수입니다.
	Size() int
}

// =============================================================================
// FIFOQueue: 먼저 들어온 키부터 퇴거하는 기본 큐
// =============================================================================
// 키 → age 맵, age → 키 집합 버킷, 서로 다른 age 위의 레드블랙 트리로 구성됩니다.
// 같은 밀리초에 여러 키가 들어오는 경우가 흔하므로 age 단위로 버킷을 묶습니다.
// 최소 age 조회와 삽입/삭제는 서로 다른 age 개수에 대해 O(log n)입니다.
// =============================================================================

// QueueConfig는 FIFOQueue 설정입니다.
type QueueConfig struct {
	// MaxEntries는 최대 키 개수입니다. 0이면 무제한입니다.
	MaxEntries int

	// AgeLimit은 키가 만료되기까지의 최대 나이입니다.
	AgeLimit time.Duration

	// Clock은 현재 시간 함수입니다. nil이면 time.Now를 사용합니다.
	Clock func() time.Time
}

// DefaultQueueConfig는 기본 큐 설정을 반환합니다.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxEntries: 0,
		AgeLimit:   DefaultAgeLimit,
		Clock:      time.Now,
	}
}

// FIFOQueue는 age 오름차순으로 퇴거하는 큐입니다.
type FIFOQueue[K comparable] struct {
	maxEntries int
	ageLimitMs int64
	clock      func() time.Time

	ages    map[K]int64
	buckets map[int64]map[K]struct{}
	tree    *redblacktree.Tree

	mu sync.Mutex
}

// NewFIFOQueue는 새로운 FIFO 큐를 생성합니다.
//
// Parameters:
//   - config: 큐 설정 (nil이면 기본값)
func NewFIFOQueue[K comparable](config *QueueConfig) *FIFOQueue[K] {
	if config == nil {
		config = DefaultQueueConfig()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	return &FIFOQueue[K]{
		maxEntries: config.MaxEntries,
		ageLimitMs: config.AgeLimit.Milliseconds(),
		clock:      clock,
		ages:       make(map[K]int64),
		buckets:    make(map[int64]map[K]struct{}),
		tree:       redblacktree.NewWith(utils.Int64Comparator),
	}
}

// AddOrReplace는 키를 age 버킷에 넣습니다.
func (q *FIFOQueue[K]) AddOrReplace(key K, age int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addLocked(key, age)
}

func (q *FIFOQueue[K]) addLocked(key K, age int64) {
	if old, ok := q.ages[key]; ok {
		if old == age {
			return
		}
		q.removeLocked(key, old)
	}

	q.ages[key] = age
	bucket, ok := q.buckets[age]
	if !ok {
		bucket = make(map[K]struct{})
		q.buckets[age] = bucket
		q.tree.Put(age, struct{}{})
	}
	bucket[key] = struct{}{}
}

// removeLocked는 버킷에서 키를 빼고, 버킷이 비면 트리에서도 age를 지웁니다.
func (q *FIFOQueue[K]) removeLocked(key K, age int64) {
	delete(q.ages, key)

	bucket, ok := q.buckets[age]
	if !ok {
		return
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(q.buckets, age)
		q.tree.Remove(age)
	}
}

// Next는 최소 age 버킷의 키 하나를 반환합니다.
func (q *FIFOQueue[K]) Next() (K, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero K
	node := q.tree.Left()
	if node == nil {
		return zero, false
	}

	for key := range q.buckets[node.Key.(int64)] {
		return key, true
	}
	return zero, false
}

// Delete는 키를 큐에서 제거합니다.
func (q *FIFOQueue[K]) Delete(key K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if age, ok := q.ages[key]; ok {
		q.removeLocked(key, age)
	}
}

// IsNextExpired는 키 개수가 MaxEntries를 넘었거나
// 가장 오래된 키의 age + AgeLimit이 현재 시간보다 이전이면 true입니다.
func (q *FIFOQueue[K]) IsNextExpired() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxEntries > 0 && len(q.ages) > q.maxEntries {
		return true
	}

	node := q.tree.Left()
	if node == nil {
		return false
	}

	return node.Key.(int64)+q.ageLimitMs < q.clock().UnixMilli()
}

// InitialAge는 현재 시간을 밀리초로 반환합니다. key는 사용하지 않습니다.
func (q *FIFOQueue[K]) InitialAge(key K) int64 {
	return q.clock().UnixMilli()
}

// UpdateAge는 이미 추적 중인 키의 age를 현재 시간으로 갱신합니다.
func (q *FIFOQueue[K]) UpdateAge(key K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ages[key]; !ok {
		return
	}
	q.addLocked(key, q.clock().UnixMilli())
}

// Compare는 CompareAscending과 같습니다.
func (q *FIFOQueue[K]) Compare(a, b int64) int {
	return CompareAscending(a, b)
}

// Size는 추적 중인 키 개수를 반환합니다.
func (q *FIFOQueue[K]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ages)
}

// Age는 키의 현재 age를 반환합니다.
func (q *FIFOQueue[K]) Age(key K) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	age, ok := q.ages[key]
	return age, ok
}
