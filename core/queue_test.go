package core

import (
	"testing"
	"time"
)

func TestFIFOQueueNextOrder(t *testing.T) {
	q := NewFIFOQueue[string](nil)

	q.AddOrReplace("c", 300)
	q.AddOrReplace("a", 100)
	q.AddOrReplace("b", 200)

	for _, want := range []string{"a", "b", "c"} {
		key, ok := q.Next()
		if !ok || key != want {
			t.Fatalf("Next가 %q 대신 %q를 반환했습니다", want, key)
		}
		q.Delete(key)
	}

	if _, ok := q.Next(); ok {
		t.Error("빈 큐에서 Next가 키를 반환했습니다")
	}
}

func TestFIFOQueueSameAgeBucket(t *testing.T) {
	q := NewFIFOQueue[string](nil)

	q.AddOrReplace("a", 100)
	q.AddOrReplace("b", 100)
	q.AddOrReplace("c", 200)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		key, _ := q.Next()
		seen[key] = true
		q.Delete(key)
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("같은 age 버킷의 키가 먼저 나오지 않았습니다: %v", seen)
	}
	if key, _ := q.Next(); key != "c" {
		t.Errorf("마지막 키가 c가 아닙니다: %q", key)
	}
}

func TestFIFOQueueReplace(t *testing.T) {
	q := NewFIFOQueue[string](nil)

	q.AddOrReplace("a", 100)
	q.AddOrReplace("b", 200)
	q.AddOrReplace("a", 300)

	if q.Size() != 2 {
		t.Errorf("큐 크기가 2가 아닙니다: %d", q.Size())
	}
	if key, _ := q.Next(); key != "b" {
		t.Errorf("다시 넣은 키가 이전 age에 남아 있습니다: %q", key)
	}
	if age, _ := q.Age("a"); age != 300 {
		t.Errorf("age가 갱신되지 않았습니다: %d", age)
	}

	q.Delete("missing")
	if q.Size() != 2 {
		t.Errorf("없는 키 삭제가 큐를 바꿨습니다: %d", q.Size())
	}
}

func TestFIFOQueueIsNextExpired(t *testing.T) {
	clock := newFakeClock(10_000)
	q := NewFIFOQueue[string](&QueueConfig{
		MaxEntries: 2,
		AgeLimit:   time.Second,
		Clock:      clock.Now,
	})

	if q.IsNextExpired() {
		t.Error("빈 큐가 만료를 보고했습니다")
	}

	q.AddOrReplace("a", q.InitialAge("a"))
	if q.IsNextExpired() {
		t.Error("새 키가 만료를 보고했습니다")
	}

	clock.Advance(time.Second)
	if q.IsNextExpired() {
		t.Error("age + limit이 현재 시간과 같을 때는 만료가 아닙니다")
	}

	clock.Advance(time.Millisecond)
	if !q.IsNextExpired() {
		t.Error("나이 제한을 넘은 키가 만료를 보고하지 않았습니다")
	}

	q.UpdateAge("a")
	if q.IsNextExpired() {
		t.Error("UpdateAge 후에도 만료를 보고했습니다")
	}

	q.AddOrReplace("b", clock.ms.Load())
	q.AddOrReplace("c", clock.ms.Load())
	if !q.IsNextExpired() {
		t.Error("MaxEntries를 넘었는데 만료를 보고하지 않았습니다")
	}
}

func TestFIFOQueueUpdateAgeIgnoresUnknownKey(t *testing.T) {
	q := NewFIFOQueue[string](nil)
	q.UpdateAge("ghost")
	if q.Size() != 0 {
		t.Errorf("추적하지 않는 키가 추가되었습니다: %d", q.Size())
	}
}
