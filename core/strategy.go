// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 쓰기 전략의 공통 부분을 구현합니다.
package core

import (
	"context"
	"fmt"
	"log/slog"
)

// =============================================================================
// Write Strategy: 충돌 해결 알고리즘
// =============================================================================
// 상위 계층에 이미 값이 있을 때 set/delete를 그대로 진행할지,
// 상위 값을 하위 계층으로 끌어내릴지(refresh) 결정합니다.
//
// 모드:
// - OverwriteAlways: 조건 없이 씀
// - OverwriteAged: 내 값이 최상위 값보다 새롭거나 같을 때만 씀 (기본값)
// - RefreshAlways: 최하위와 최상위의 age가 정확히 같을 때만 씀
//
// force 플래그는 모드와 상관없이 항상 무조건 쓰기 경로를 탑니다.
// =============================================================================

// SetStrategy는 set 충돌 해결 전략입니다.
type SetStrategy[K comparable, V any] interface {
	Set(ctx context.Context, key K, value V, force bool) WriteStatus
}

// DeleteStrategy는 delete/evict 충돌 해결 전략입니다.
type DeleteStrategy[K comparable, V any] interface {
	Delete(ctx context.Context, key K, force bool) WriteStatus

	// Evict는 퇴거용 삭제입니다. evictAtLevel이 nil이 아니면 그 계층부터 0까지만 지웁니다.
	Evict(ctx context.Context, key K, evictAtLevel *int) WriteStatus
}

// NewSetStrategy는 모드에 맞는 set 전략을 생성합니다.
func NewSetStrategy[K comparable, V any](mode WriteMode, hierarchy *Hierarchy[K, V], queue AgedQueue[K], logger *slog.Logger) (SetStrategy[K, V], error) {
	base := newWriteStrategy(hierarchy, queue, logger)
	switch mode {
	case OverwriteAlways:
		return &overwriteAlwaysSet[K, V]{base}, nil
	case OverwriteAged:
		return &overwriteAgedSet[K, V]{base}, nil
	case RefreshAlways:
		return &refreshAlwaysSet[K, V]{base}, nil
	default:
		return nil, fmt.Errorf("%w: set mode %d", ErrUnsupportedPolicy, mode)
	}
}

// NewDeleteStrategy는 모드에 맞는 delete 전략을 생성합니다.
func NewDeleteStrategy[K comparable, V any](mode WriteMode, hierarchy *Hierarchy[K, V], queue AgedQueue[K], logger *slog.Logger) (DeleteStrategy[K, V], error) {
	base := newWriteStrategy(hierarchy, queue, logger)
	switch mode {
	case OverwriteAlways:
		return &overwriteAlwaysDelete[K, V]{base}, nil
	case OverwriteAged:
		return &conditionalDelete[K, V]{
			writeStrategy: base,
			accept:        func(cmp int) bool { return cmp >= 0 },
		}, nil
	case RefreshAlways:
		return &conditionalDelete[K, V]{
			writeStrategy: base,
			accept:        func(cmp int) bool { return cmp == 0 },
		}, nil
	default:
		return nil, fmt.Errorf("%w: delete mode %d", ErrUnsupportedPolicy, mode)
	}
}

// =============================================================================
// writeStrategy: 모든 전략이 공유하는 실행 헬퍼
// =============================================================================

type writeStrategy[K comparable, V any] struct {
	hierarchy *Hierarchy[K, V]
	queue     AgedQueue[K]
	logger    *slog.Logger
}

func newWriteStrategy[K comparable, V any](hierarchy *Hierarchy[K, V], queue AgedQueue[K], logger *slog.Logger) *writeStrategy[K, V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &writeStrategy[K, V]{
		hierarchy: hierarchy,
		queue:     queue,
		logger:    logger.With("component", "write-strategy"),
	}
}

// newAgedValue는 큐 정책의 기본 age로 값을 감쌉니다.
func (s *writeStrategy[K, V]) newAgedValue(key K, value V) AgedValue[V] {
	return AgedValue[V]{Age: s.queue.InitialAge(key), Value: value}
}

// executeSet은 계층 0부터 위로 값을 쓰고, 모든 계층에 쓰였을 때만 큐에 반영합니다.
func (s *writeStrategy[K, V]) executeSet(ctx context.Context, key K, value AgedValue[V]) WriteStatus {
	result := s.hierarchy.SetAtLevel(ctx, key, value, 0, true)
	status := result.Classify(s.hierarchy.TotalLevels())
	if status == Success {
		s.queue.AddOrReplace(key, value.Age)
	}
	return status
}

// executeDelete는 키를 지웁니다. evictAtLevel이 nil이면 계층 0부터 위로 전부,
// 아니면 그 계층부터 0까지 지웁니다. 모두 지워졌을 때만 큐에서 제거합니다.
func (s *writeStrategy[K, V]) executeDelete(ctx context.Context, key K, evictAtLevel *int) WriteStatus {
	var result WriteResult[V]
	var expected int

	if evictAtLevel == nil {
		result = s.hierarchy.DeleteAtLevel(ctx, key, 0, true)
		expected = s.hierarchy.TotalLevels()
	} else {
		result = s.hierarchy.DeleteAtLevel(ctx, key, *evictAtLevel, false)
		expected = *evictAtLevel + 1
	}

	status := result.Classify(expected)
	if status == Success {
		s.queue.Delete(key)
	}
	return status
}

// setFromHighestLevel은 최상위 값을 그 아래 모든 계층에 씁니다.
func (s *writeStrategy[K, V]) setFromHighestLevel(ctx context.Context, key K, highest AgedValue[V]) WriteStatus {
	result := s.hierarchy.SetBelowTopLevel(ctx, key, highest)
	if result.WrittenLevels == s.hierarchy.TotalLevels()-1 {
		s.queue.AddOrReplace(key, highest.Age)
		return Refreshed
	}
	return RefreshedError
}

// =============================================================================
// Set 전략
// =============================================================================

// overwriteAlwaysSet은 최상위 계층을 읽지 않고 항상 씁니다.
type overwriteAlwaysSet[K comparable, V any] struct {
	*writeStrategy[K, V]
}

func (s *overwriteAlwaysSet[K, V]) Set(ctx context.Context, key K, value V, force bool) WriteStatus {
	return s.executeSet(ctx, key, s.newAgedValue(key, value))
}

// overwriteAgedSet은 최상위 값이 없거나 내 값보다 오래되지 않았을 때만 씁니다.
type overwriteAgedSet[K comparable, V any] struct {
	*writeStrategy[K, V]
}

func (s *overwriteAgedSet[K, V]) Set(ctx context.Context, key K, value V, force bool) WriteStatus {
	aged := s.newAgedValue(key, value)
	if force {
		return s.executeSet(ctx, key, aged)
	}

	highest := s.hierarchy.GetValueAtTopLevel(ctx, key)
	if highest == nil || s.queue.Compare(highest.Age, aged.Age) <= 0 {
		return s.executeSet(ctx, key, aged)
	}

	s.logger.Debug("set deferred", "key", key, "age_to_set", aged.Age, "age_found", highest.Age)
	return s.setFromHighestLevel(ctx, key, *highest)
}

// refreshAlwaysSet은 최하위와 최상위 age가 같을 때만 씁니다.
type refreshAlwaysSet[K comparable, V any] struct {
	*writeStrategy[K, V]
}

func (s *refreshAlwaysSet[K, V]) Set(ctx context.Context, key K, value V, force bool) WriteStatus {
	aged := s.newAgedValue(key, value)
	if force {
		return s.executeSet(ctx, key, aged)
	}

	highest := s.hierarchy.GetValueAtTopLevel(ctx, key)
	if highest == nil {
		return s.executeSet(ctx, key, aged)
	}

	lowest := s.hierarchy.GetValueAtBottomLevel(ctx, key)
	if lowest != nil && s.queue.Compare(lowest.Age, highest.Age) == 0 {
		return s.executeSet(ctx, key, aged)
	}

	s.logger.Debug("set deferred", "key", key, "age_found", highest.Age, "bottom_present", lowest != nil)
	return s.setFromHighestLevel(ctx, key, *highest)
}

// =============================================================================
// Delete 전략
// =============================================================================

// overwriteAlwaysDelete는 항상 지웁니다.
type overwriteAlwaysDelete[K comparable, V any] struct {
	*writeStrategy[K, V]
}

func (s *overwriteAlwaysDelete[K, V]) Delete(ctx context.Context, key K, force bool) WriteStatus {
	return s.executeDelete(ctx, key, nil)
}

func (s *overwriteAlwaysDelete[K, V]) Evict(ctx context.Context, key K, evictAtLevel *int) WriteStatus {
	return s.executeDelete(ctx, key, evictAtLevel)
}

// conditionalDelete는 OverwriteAged와 RefreshAlways의 삭제 알고리즘입니다.
// 최상위에 값이 없으면 지우고, 있으면 최하위 age와 비교해 accept가 true일 때만 지웁니다.
// 그 외에는 최상위 값을 하위 계층으로 끌어내립니다.
type conditionalDelete[K comparable, V any] struct {
	*writeStrategy[K, V]
	accept func(cmp int) bool
}

func (s *conditionalDelete[K, V]) Delete(ctx context.Context, key K, force bool) WriteStatus {
	if force {
		return s.executeDelete(ctx, key, nil)
	}
	return s.deleteConditionally(ctx, key, nil)
}

func (s *conditionalDelete[K, V]) Evict(ctx context.Context, key K, evictAtLevel *int) WriteStatus {
	return s.deleteConditionally(ctx, key, evictAtLevel)
}

func (s *conditionalDelete[K, V]) deleteConditionally(ctx context.Context, key K, evictAtLevel *int) WriteStatus {
	highest := s.hierarchy.GetValueAtTopLevel(ctx, key)
	if highest == nil {
		return s.executeDelete(ctx, key, evictAtLevel)
	}

	lowest := s.hierarchy.GetValueAtBottomLevel(ctx, key)
	if lowest != nil && s.accept(s.queue.Compare(lowest.Age, highest.Age)) {
		return s.executeDelete(ctx, key, evictAtLevel)
	}

	if lowest != nil {
		s.logger.Debug("delete deferred", "key", key, "age_to_delete", lowest.Age, "age_found", highest.Age)
	} else {
		s.logger.Debug("delete deferred", "key", key, "age_found", highest.Age)
	}
	return s.setFromHighestLevel(ctx, key, *highest)
}
