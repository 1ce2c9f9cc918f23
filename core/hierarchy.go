// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 저장 계층 구조(StorageHierarchy)를 구현합니다.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// =============================================================================
// Hierarchy: 순서가 있는 저장 계층 묶음
// =============================================================================
// 계층 0은 가장 빠르고 덜 영속적인 저장소이고, 최상위 계층(N-1)은
// "키가 존재하는가"에 대한 기준 저장소입니다.
//
// 읽기는 오름차순(0 → N-1), 쓰기는 시작 계층부터 지정 방향으로 진행하며
// 한 계층이라도 실패하면 그 방향의 전파를 멈춥니다.
// 계층 순회는 항상 순차적이며, 재귀 대신 반복문으로 구현합니다.
// =============================================================================

// UpdatePolicy는 상위 계층에서 구독한 변경을 하위 계층에 반영하는 정책입니다.
type UpdatePolicy int

const (
	// OnlyIfKeyExist는 하위 계층에 키가 있을 때만 반영합니다. 기본값입니다.
	// 키가 없으면 다음 읽기가 상위 계층까지 내려가므로 하위 계층이 무한히 커지지 않습니다.
	OnlyIfKeyExist UpdatePolicy = iota

	// Always는 조건 없이 반영합니다.
	Always
)

// String은 UpdatePolicy의 문자열 표현을 반환합니다.
func (p UpdatePolicy) String() string {
	switch p {
	case OnlyIfKeyExist:
		return "only-if-key-exist"
	case Always:
		return "always"
	default:
		return "unknown"
	}
}

// ParseUpdatePolicy는 문자열을 UpdatePolicy로 변환합니다.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch s {
	case "only-if-key-exist", "":
		return OnlyIfKeyExist, nil
	case "always":
		return Always, nil
	default:
		return 0, fmt.Errorf("%w: update policy %q", ErrUnsupportedPolicy, s)
	}
}

// HierarchyOptions는 계층 구조 설정입니다.
type HierarchyOptions struct {
	// UpdatePolicy는 구독 변경 반영 정책입니다.
	UpdatePolicy UpdatePolicy

	// Compare는 age 비교 함수입니다. nil이면 CompareAscending입니다.
	Compare CompareFunc

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger

	// Observer는 전파 이벤트를 받습니다. nil이면 무시합니다.
	Observer Observer
}

// DefaultHierarchyOptions는 기본 설정을 반환합니다.
func DefaultHierarchyOptions() *HierarchyOptions {
	return &HierarchyOptions{
		UpdatePolicy: OnlyIfKeyExist,
		Compare:      CompareAscending,
	}
}

// Hierarchy는 저장 계층 구조입니다.
type Hierarchy[K comparable, V any] struct {
	levels   []*Level[K, V]
	policy   UpdatePolicy
	compare  CompareFunc
	logger   *slog.Logger
	observer Observer

	// handlers는 계층 번호별로 등록한 구독 핸들러입니다.
	handlers map[int]*levelUpdateHandler[K, V]

	// pending은 진행 중인 전파 쓰기입니다. Close가 모두 끝날 때까지 기다립니다.
	pending sync.WaitGroup
	closed  bool

	mu sync.Mutex
}

// =============================================================================
// Hierarchy 생성자
// =============================================================================

// NewHierarchy는 새로운 계층 구조를 생성합니다.
// 생성 시 최상위 계층부터 내려가며 구독 가능한 계층 L(≥1)마다
// L-1 계층으로 변경을 반영하는 핸들러를 등록합니다.
//
// Parameters:
//   - providers: 계층 0부터 순서대로의 프로바이더 (최소 2개)
//   - options: 설정 (nil이면 기본값)
func NewHierarchy[K comparable, V any](providers []StorageProvider[K, V], options *HierarchyOptions) (*Hierarchy[K, V], error) {
	if len(providers) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewLevels, len(providers))
	}
	if options == nil {
		options = DefaultHierarchyOptions()
	}
	if options.UpdatePolicy != OnlyIfKeyExist && options.UpdatePolicy != Always {
		return nil, fmt.Errorf("%w: update policy %d", ErrUnsupportedPolicy, options.UpdatePolicy)
	}

	compare := options.Compare
	if compare == nil {
		compare = CompareAscending
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hierarchy[K, V]{
		levels:   make([]*Level[K, V], len(providers)),
		policy:   options.UpdatePolicy,
		compare:  compare,
		logger:   logger.With("component", "storage-hierarchy"),
		observer: observerOrNop(options.Observer),
		handlers: make(map[int]*levelUpdateHandler[K, V]),
	}
	for i, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("storage provider at level %d is nil", i)
		}
		h.levels[i] = newLevel(i, p)
	}

	h.logger.Info("created storage hierarchy", "levels", len(h.levels), "update_policy", h.policy.String())
	h.subscribeLevels()

	return h, nil
}

// subscribeLevels는 최상위 계층부터 아래로 구독 핸들러를 등록합니다.
func (h *Hierarchy[K, V]) subscribeLevels() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for level := len(h.levels) - 1; level >= 1; level-- {
		sub, ok := AsSubscribable(h.levels[level].provider)
		if !ok {
			continue
		}

		handler := &levelUpdateHandler[K, V]{hierarchy: h, source: level}
		if sub.Subscribe(handler) {
			h.handlers[level] = handler
			h.logger.Debug("subscribed to level", "storage_level", level)
		}
	}
}

// =============================================================================
// Hierarchy 기본 정보
// =============================================================================

// TotalLevels는 계층 수를 반환합니다.
func (h *Hierarchy[K, V]) TotalLevels() int {
	return len(h.levels)
}

// TopLevel은 최상위 계층 번호를 반환합니다.
func (h *Hierarchy[K, V]) TopLevel() int {
	return len(h.levels) - 1
}

// IsPersistable은 최상위 계층이 영속적인지 반환합니다.
func (h *Hierarchy[K, V]) IsPersistable() bool {
	return h.levels[h.TopLevel()].provider.IsPersistable()
}

// Compare는 계층이 사용하는 age 비교 함수를 반환합니다.
func (h *Hierarchy[K, V]) Compare() CompareFunc {
	return h.compare
}

// Level은 계층 하나를 반환합니다. 범위를 벗어나면 nil입니다.
func (h *Hierarchy[K, V]) Level(level int) *Level[K, V] {
	if !h.inRange(level) {
		return nil
	}
	return h.levels[level]
}

// Stats는 모든 계층의 통계를 반환합니다.
func (h *Hierarchy[K, V]) Stats() []LevelStats {
	stats := make([]LevelStats, len(h.levels))
	for i, l := range h.levels {
		stats[i] = l.Stats()
	}
	return stats
}

func (h *Hierarchy[K, V]) inRange(level int) bool {
	return level >= 0 && level < len(h.levels)
}

func step(level int, ascending bool) int {
	if ascending {
		return level + 1
	}
	return level - 1
}

// =============================================================================
// Hierarchy 읽기
// =============================================================================

// GetAtLevel은 level부터 지정 방향으로 계층을 하나씩 조회합니다.
// 미스이거나 에러가 난 계층은 건너뛰며, 끝까지 없으면 nil입니다.
// 개별 계층의 에러는 로그만 남기고 호출자에게 전달하지 않습니다.
func (h *Hierarchy[K, V]) GetAtLevel(ctx context.Context, key K, level int, ascending bool) *AgedValue[V] {
	value, _ := h.getAtLevel(ctx, key, level, ascending)
	return value
}

// getAtLevel은 값을 찾은 계층 번호도 함께 반환합니다. 못 찾으면 -1입니다.
func (h *Hierarchy[K, V]) getAtLevel(ctx context.Context, key K, level int, ascending bool) (*AgedValue[V], int) {
	for l := level; h.inRange(l); l = step(l, ascending) {
		value, err := h.levels[l].Get(ctx, key)
		if err != nil {
			h.logger.Debug("failed to get", "storage_level", l, "key", key, "error", err)
			continue
		}
		if value != nil {
			return value, l
		}
		h.logger.Debug("cache miss", "storage_level", l, "key", key)
	}
	return nil, -1
}

// GetValueAtTopLevel은 최상위 계층만 조회합니다.
func (h *Hierarchy[K, V]) GetValueAtTopLevel(ctx context.Context, key K) *AgedValue[V] {
	return h.GetAtLevel(ctx, key, h.TopLevel(), true)
}

// GetValueAtBottomLevel은 계층 0만 조회합니다.
func (h *Hierarchy[K, V]) GetValueAtBottomLevel(ctx context.Context, key K) *AgedValue[V] {
	return h.GetAtLevel(ctx, key, 0, false)
}

// GetSizeAtLevel은 계층의 항목 개수를 반환합니다.
func (h *Hierarchy[K, V]) GetSizeAtLevel(ctx context.Context, level int) (int, error) {
	if !h.inRange(level) {
		return 0, fmt.Errorf("level %d out of range [0, %d]", level, h.TopLevel())
	}
	return h.levels[level].provider.Size(ctx)
}

// GetKeysAtTopLevel은 최상위 계층의 키 목록을 반환합니다.
// 최상위 계층은 전체 계층의 모든 키를 가지고 있어야 합니다.
func (h *Hierarchy[K, V]) GetKeysAtTopLevel(ctx context.Context) ([]K, error) {
	return h.levels[h.TopLevel()].provider.Keys(ctx)
}

// =============================================================================
// Hierarchy 쓰기
// =============================================================================

// SetAtLevel은 level부터 지정 방향으로 값을 씁니다.
// 현재 계층의 쓰기가 성공해야만 다음 계층으로 진행합니다.
func (h *Hierarchy[K, V]) SetAtLevel(ctx context.Context, key K, value AgedValue[V], level int, ascending bool) WriteResult[V] {
	var result WriteResult[V]

	for l := level; h.inRange(l); l = step(l, ascending) {
		ok, err := h.levels[l].Set(ctx, key, value)
		if err != nil {
			h.logger.Warn("error setting", "storage_level", l, "key", key, "error", err)
			break
		}
		if !ok {
			h.logger.Warn("set rejected", "storage_level", l, "key", key)
			break
		}
		h.markWritten(&result, l)
	}

	if result.WrittenLevels > 0 {
		written := value
		result.WrittenValue = &written
	}
	return result
}

// DeleteAtLevel은 level부터 지정 방향으로 키를 삭제합니다.
// SetAtLevel과 같은 전파 규칙을 따릅니다.
func (h *Hierarchy[K, V]) DeleteAtLevel(ctx context.Context, key K, level int, ascending bool) WriteResult[V] {
	var result WriteResult[V]

	for l := level; h.inRange(l); l = step(l, ascending) {
		ok, err := h.levels[l].Delete(ctx, key)
		if err != nil {
			h.logger.Warn("error deleting", "storage_level", l, "key", key, "error", err)
			break
		}
		if !ok {
			h.logger.Warn("delete rejected", "storage_level", l, "key", key)
			break
		}
		h.markWritten(&result, l)
	}

	return result
}

// SetBelowTopLevel은 최상위 바로 아래 계층부터 0까지 값을 씁니다.
// 최상위 계층 값으로 하위 계층을 갱신할 때 사용합니다.
func (h *Hierarchy[K, V]) SetBelowTopLevel(ctx context.Context, key K, value AgedValue[V]) WriteResult[V] {
	return h.SetAtLevel(ctx, key, value, h.TopLevel()-1, false)
}

func (h *Hierarchy[K, V]) markWritten(result *WriteResult[V], level int) {
	result.WrittenLevels++
	l := h.levels[level]
	if level == h.TopLevel() && l.provider.IsPersistable() {
		result.IsPersisted = true
	}
	if l.Subscribable() {
		result.IsPublished = true
	}
}

// =============================================================================
// Hierarchy 구독 전파
// =============================================================================

// levelUpdateHandler는 source 계층의 외부 변경을 source-1 계층으로 반영합니다.
type levelUpdateHandler[K comparable, V any] struct {
	hierarchy *Hierarchy[K, V]
	source    int
}

// OnUpdate는 UpdateHandler 구현입니다.
func (u *levelUpdateHandler[K, V]) OnUpdate(ctx context.Context, key K, value *AgedValue[V]) {
	u.hierarchy.propagate(ctx, u.source, key, value)
}

// propagate는 구독한 변경 하나를 하위 계층에 반영합니다.
// 진행 중인 전파는 pending에 잡혀 Close가 기다립니다.
func (h *Hierarchy[K, V]) propagate(ctx context.Context, source int, key K, value *AgedValue[V]) WriteStatus {
	if !h.beginUpdate() {
		h.logger.Debug("hierarchy closed, dropping update", "storage_level", source, "key", key)
		return UnspecifiedError
	}
	defer h.pending.Done()

	target := source - 1
	status := h.applyUpdate(ctx, target, key, value)
	h.observer.OnPropagation(source, key, value == nil, status)
	return status
}

func (h *Hierarchy[K, V]) applyUpdate(ctx context.Context, target int, key K, value *AgedValue[V]) WriteStatus {
	if h.policy == OnlyIfKeyExist {
		existing := h.GetAtLevel(ctx, key, target, false)
		if existing == nil {
			h.logger.Debug("key doesn't exist, ignoring subscribed update", "storage_level", target, "key", key)
			return UnspecifiedError
		}
		if value != nil && h.compare(existing.Age, value.Age) >= 0 {
			return Success
		}
	}

	var result WriteResult[V]
	if value != nil {
		result = h.SetAtLevel(ctx, key, *value, target, false)
	} else {
		result = h.DeleteAtLevel(ctx, key, target, false)
	}
	return result.Classify(target + 1)
}

func (h *Hierarchy[K, V]) beginUpdate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.pending.Add(1)
	return true
}

// =============================================================================
// Hierarchy 종료
// =============================================================================

// Close는 모든 구독 핸들러를 해제하고 진행 중인 전파가 끝날 때까지 기다립니다.
// 프로바이더 자체는 닫지 않습니다.
func (h *Hierarchy[K, V]) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	handlers := h.handlers
	h.handlers = make(map[int]*levelUpdateHandler[K, V])
	h.mu.Unlock()

	for level, handler := range handlers {
		if sub, ok := AsSubscribable(h.levels[level].provider); ok {
			sub.Unsubscribe(handler)
		}
	}

	h.pending.Wait()
	h.logger.Info("storage hierarchy closed")
	return nil
}
