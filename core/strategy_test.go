package core

import (
	"context"
	"errors"
	"testing"
)

func newTestStrategies(t *testing.T, n int, mode WriteMode, clock *fakeClock) (SetStrategy[string, string], DeleteStrategy[string, string], *FIFOQueue[string], []*mockProvider) {
	t.Helper()

	h, mocks := newTestHierarchy(t, n, nil)
	q := NewFIFOQueue[string](&QueueConfig{AgeLimit: DefaultAgeLimit, Clock: clock.Now})

	set, err := NewSetStrategy(mode, h, q, discardLogger)
	if err != nil {
		t.Fatalf("set 전략 생성 실패: %v", err)
	}
	del, err := NewDeleteStrategy(mode, h, q, discardLogger)
	if err != nil {
		t.Fatalf("delete 전략 생성 실패: %v", err)
	}
	return set, del, q, mocks
}

func TestNewStrategyUnsupportedMode(t *testing.T) {
	h, _ := newTestHierarchy(t, 2, nil)
	q := NewFIFOQueue[string](nil)

	if _, err := NewSetStrategy(WriteMode(42), h, q, nil); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Errorf("ErrUnsupportedPolicy가 아닙니다: %v", err)
	}
	if _, err := NewDeleteStrategy(WriteMode(42), h, q, nil); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Errorf("ErrUnsupportedPolicy가 아닙니다: %v", err)
	}
}

func TestOverwriteAgedSet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(1000)
	set, _, q, mocks := newTestStrategies(t, 2, OverwriteAged, clock)

	// 최상위 값이 더 새로우면 하위 계층을 갱신합니다.
	mocks[1].put("k", 2000, "remote")
	if status := set.Set(ctx, "k", "local", false); status != Refreshed {
		t.Fatalf("Refreshed가 아닙니다: %s", status)
	}
	if v, _ := mocks[0].lookup("k"); v.Value != "remote" || v.Age != 2000 {
		t.Errorf("하위 계층이 최상위 값으로 갱신되지 않았습니다: %+v", v)
	}
	if age, _ := q.Age("k"); age != 2000 {
		t.Errorf("큐 age가 최상위 age가 아닙니다: %d", age)
	}

	// 같은 age면 덮어씁니다.
	clock.ms.Store(2000)
	if status := set.Set(ctx, "k", "local", false); status != Success {
		t.Fatalf("Success가 아닙니다: %s", status)
	}
	if v, _ := mocks[1].lookup("k"); v.Value != "local" {
		t.Errorf("최상위 값이 덮어써지지 않았습니다: %+v", v)
	}

	// force는 조건을 무시합니다.
	mocks[1].put("k", 9000, "remote")
	if status := set.Set(ctx, "k", "forced", true); status != Success {
		t.Fatalf("force Set이 Success가 아닙니다: %s", status)
	}
	if v, _ := mocks[1].lookup("k"); v.Value != "forced" {
		t.Errorf("force Set이 최상위를 덮어쓰지 않았습니다: %+v", v)
	}
}

func TestOverwriteAgedSetRefreshError(t *testing.T) {
	ctx := context.Background()
	set, _, _, mocks := newTestStrategies(t, 2, OverwriteAged, newFakeClock(1000))

	mocks[1].put("k", 2000, "remote")
	mocks[0].failSet = true
	if status := set.Set(ctx, "k", "local", false); status != RefreshedError {
		t.Errorf("RefreshedError가 아닙니다: %s", status)
	}
}

func TestRefreshAlwaysSet(t *testing.T) {
	ctx := context.Background()
	set, _, _, mocks := newTestStrategies(t, 3, RefreshAlways, newFakeClock(5000))

	if status := set.Set(ctx, "new", "v", false); status != Success {
		t.Errorf("최상위에 없는 키의 Set이 Success가 아닙니다: %s", status)
	}

	// 최하위에 없으면 최상위 값으로 갱신합니다.
	mocks[2].put("k", 100, "top")
	if status := set.Set(ctx, "k", "mine", false); status != Refreshed {
		t.Fatalf("Refreshed가 아닙니다: %s", status)
	}
	if v, _ := mocks[0].lookup("k"); v.Value != "top" {
		t.Errorf("최하위 계층이 갱신되지 않았습니다: %+v", v)
	}

	// 최하위와 최상위 age가 같으면 씁니다.
	if status := set.Set(ctx, "k", "mine", false); status != Success {
		t.Fatalf("Success가 아닙니다: %s", status)
	}
	if v, _ := mocks[2].lookup("k"); v.Value != "mine" {
		t.Errorf("최상위가 덮어써지지 않았습니다: %+v", v)
	}
}

func TestOverwriteAlwaysSet(t *testing.T) {
	ctx := context.Background()
	set, _, _, mocks := newTestStrategies(t, 2, OverwriteAlways, newFakeClock(1))

	mocks[1].put("k", 99999, "newer")
	if status := set.Set(ctx, "k", "mine", false); status != Success {
		t.Fatalf("Success가 아닙니다: %s", status)
	}
	if v, _ := mocks[1].lookup("k"); v.Value != "mine" {
		t.Errorf("최상위가 덮어써지지 않았습니다: %+v", v)
	}
}

func TestOverwriteAgedDelete(t *testing.T) {
	ctx := context.Background()
	_, del, q, mocks := newTestStrategies(t, 2, OverwriteAged, newFakeClock(0))

	// 최상위에 없으면 바로 지웁니다.
	if status := del.Delete(ctx, "absent", false); status != Success {
		t.Errorf("없는 키 삭제가 Success가 아닙니다: %s", status)
	}

	// 최상위가 더 새로우면 지우지 않고 갱신합니다.
	mocks[0].put("k", 100, "old")
	mocks[1].put("k", 200, "new")
	if status := del.Delete(ctx, "k", false); status != Refreshed {
		t.Fatalf("Refreshed가 아닙니다: %s", status)
	}
	if v, ok := mocks[0].lookup("k"); !ok || v.Value != "new" {
		t.Errorf("최하위가 갱신되지 않았습니다: %+v", v)
	}
	if _, ok := q.Age("k"); !ok {
		t.Error("갱신된 키가 큐에 없습니다")
	}

	// age가 같아졌으므로 이제 지웁니다.
	if status := del.Delete(ctx, "k", false); status != Success {
		t.Fatalf("Success가 아닙니다: %s", status)
	}
	if _, ok := mocks[1].lookup("k"); ok {
		t.Error("최상위에서 삭제되지 않았습니다")
	}
	if _, ok := q.Age("k"); ok {
		t.Error("삭제된 키가 큐에 남아 있습니다")
	}
}

func TestRefreshAlwaysDelete(t *testing.T) {
	ctx := context.Background()
	_, del, _, mocks := newTestStrategies(t, 2, RefreshAlways, newFakeClock(0))

	// 최하위가 더 새로워도 age가 다르면 지우지 않습니다.
	mocks[0].put("k", 300, "local")
	mocks[1].put("k", 200, "top")
	if status := del.Delete(ctx, "k", false); status != Refreshed {
		t.Fatalf("Refreshed가 아닙니다: %s", status)
	}

	if status := del.Delete(ctx, "k", true); status != Success {
		t.Fatalf("force 삭제가 Success가 아닙니다: %s", status)
	}
	if _, ok := mocks[1].lookup("k"); ok {
		t.Error("force 삭제가 최상위를 지우지 않았습니다")
	}
}

func TestEvictAtLevel(t *testing.T) {
	ctx := context.Background()
	_, del, _, mocks := newTestStrategies(t, 3, OverwriteAlways, newFakeClock(0))

	for _, m := range mocks {
		m.put("k", 1, "v")
	}

	level := 1
	if status := del.Evict(ctx, "k", &level); status != Success {
		t.Fatalf("Success가 아닙니다: %s", status)
	}
	if _, ok := mocks[2].lookup("k"); !ok {
		t.Error("evictAtLevel 위 계층이 지워졌습니다")
	}

	// evictAtLevel 계층이 실패하면 아래로 진행하지 않습니다.
	for _, m := range mocks {
		m.put("j", 1, "v")
	}
	mocks[1].failDelete = true
	if status := del.Evict(ctx, "j", &level); status != UnspecifiedError {
		t.Errorf("UnspecifiedError가 아닙니다: %s", status)
	}
	if _, ok := mocks[0].lookup("j"); !ok {
		t.Error("실패한 계층 아래가 지워졌습니다")
	}
}
