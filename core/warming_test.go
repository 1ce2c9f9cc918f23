package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestRehydrate(t *testing.T) {
	ctx := context.Background()
	h, mocks := newTestHierarchy(t, 2, nil)
	clock := newFakeClock(0)
	cache := newTestCache(t, h, clock)

	for i := 0; i < 20; i++ {
		mocks[1].put(fmt.Sprintf("key%d", i), int64(100+i), "v")
	}

	var progress atomic.Int32
	result, err := cache.Rehydrate(ctx, &RehydrateConfig{
		Concurrency: 4,
		OnProgress:  func(done, total int) { progress.Add(1) },
	})
	if err != nil {
		t.Fatalf("Rehydrate 실패: %v", err)
	}

	if result.Total != 20 || result.Loaded != 20 || result.Missing != 0 {
		t.Errorf("결과가 잘못되었습니다: %+v", result)
	}
	if result.SuccessRate() != 1.0 {
		t.Errorf("성공률이 1.0이 아닙니다: %f", result.SuccessRate())
	}
	if cache.Len() != 20 {
		t.Errorf("큐 크기가 20이 아닙니다: %d", cache.Len())
	}
	if progress.Load() != 20 {
		t.Errorf("진행 콜백 횟수가 20이 아닙니다: %d", progress.Load())
	}

	// 저장된 age가 그대로 퇴거 순서가 됩니다.
	if key, _ := cache.queue.Next(); key != "key0" {
		t.Errorf("가장 오래된 키가 key0이 아닙니다: %q", key)
	}
}

func TestRehydrateWarmsLowerLevels(t *testing.T) {
	ctx := context.Background()
	h, mocks := newTestHierarchy(t, 3, nil)
	cache := newTestCache(t, h, newFakeClock(0))

	mocks[2].put("a", 10, "va")
	mocks[2].put("b", 20, "vb")

	if _, err := cache.Rehydrate(ctx, nil); err != nil {
		t.Fatalf("Rehydrate 실패: %v", err)
	}

	for level := 0; level < 2; level++ {
		v, ok := mocks[level].lookup("a")
		if !ok || v.Age != 10 || v.Value != "va" {
			t.Errorf("계층 %d가 채워지지 않았습니다: %+v, %v", level, v, ok)
		}
	}
}

func TestRehydratedKeysPurgeInOnePass(t *testing.T) {
	ctx := context.Background()
	h, mocks := newTestHierarchy(t, 2, nil)
	clock := newFakeClock(0)
	cache := newTestCache(t, h, clock)

	const n = 5
	for i := 0; i < n; i++ {
		mocks[1].put(fmt.Sprintf("key%d", i), int64(100+i), "v")
	}

	if _, err := cache.Rehydrate(ctx, nil); err != nil {
		t.Fatalf("Rehydrate 실패: %v", err)
	}

	clock.Advance(DefaultAgeLimit + time.Minute)
	if err := cache.Purge(ctx); err != nil {
		t.Fatalf("Purge 실패: %v", err)
	}

	for level, m := range mocks {
		if size, _ := m.Size(ctx); size != 0 {
			t.Errorf("계층 %d에 %d개가 남았습니다", level, size)
		}
	}
	if cache.Len() != 0 {
		t.Errorf("큐에 %d개가 남았습니다", cache.Len())
	}
}

func TestRehydrateAfterClose(t *testing.T) {
	h, _ := newTestHierarchy(t, 2, nil)
	cache := newTestCache(t, h, newFakeClock(0))
	cache.Close()

	if _, err := cache.Rehydrate(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("ErrClosed가 아닙니다: %v", err)
	}
}
