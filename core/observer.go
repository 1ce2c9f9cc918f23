package core

import "time"

// =============================================================================
// Observer: 캐시 이벤트 훅
// =============================================================================
// Observer는 캐시와 계층 구조의 이벤트를 받습니다.
// 로깅(plugin 패키지), 메트릭(metrics 패키지) 등이 구현합니다.
// 훅은 호출한 고루틴에서 동기적으로 실행되므로 빨리 반환해야 합니다.
// =============================================================================

// Observer는 캐시 이벤트를 받는 인터페이스입니다.
type Observer interface {
	// OnGet은 조회 후 호출됩니다. 미스면 level은 -1입니다.
	OnGet(key any, level int, hit bool, latency time.Duration)

	// OnSet은 Set 후 호출됩니다.
	OnSet(key any, status WriteStatus, latency time.Duration)

	// OnDelete는 Delete 후 호출됩니다.
	OnDelete(key any, status WriteStatus, latency time.Duration)

	// OnEviction은 퇴거 시도 후 호출됩니다.
	OnEviction(key any, status WriteStatus)

	// OnPurge는 퍼지 한 번이 끝난 뒤 호출됩니다.
	OnPurge(evicted int, duration time.Duration, err error)

	// OnPropagation은 구독 변경이 하위 계층에 반영된 뒤 호출됩니다.
	// level은 변경이 관찰된 계층입니다.
	OnPropagation(level int, key any, deleted bool, status WriteStatus)
}

// NopObserver는 아무것도 하지 않는 Observer입니다. 임베딩용으로도 사용합니다.
type NopObserver struct{}

func (NopObserver) OnGet(key any, level int, hit bool, latency time.Duration)          {}
func (NopObserver) OnSet(key any, status WriteStatus, latency time.Duration)           {}
func (NopObserver) OnDelete(key any, status WriteStatus, latency time.Duration)        {}
func (NopObserver) OnEviction(key any, status WriteStatus)                             {}
func (NopObserver) OnPurge(evicted int, duration time.Duration, err error)             {}
func (NopObserver) OnPropagation(level int, key any, deleted bool, status WriteStatus) {}

// Observers는 여러 Observer에 이벤트를 순서대로 전달합니다.
type Observers []Observer

func (o Observers) OnGet(key any, level int, hit bool, latency time.Duration) {
	for _, obs := range o {
		obs.OnGet(key, level, hit, latency)
	}
}

func (o Observers) OnSet(key any, status WriteStatus, latency time.Duration) {
	for _, obs := range o {
		obs.OnSet(key, status, latency)
	}
}

func (o Observers) OnDelete(key any, status WriteStatus, latency time.Duration) {
	for _, obs := range o {
		obs.OnDelete(key, status, latency)
	}
}

func (o Observers) OnEviction(key any, status WriteStatus) {
	for _, obs := range o {
		obs.OnEviction(key, status)
	}
}

func (o Observers) OnPurge(evicted int, duration time.Duration, err error) {
	for _, obs := range o {
		obs.OnPurge(evicted, duration, err)
	}
}

func (o Observers) OnPropagation(level int, key any, deleted bool, status WriteStatus) {
	for _, obs := range o {
		obs.OnPropagation(level, key, deleted, status)
	}
}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
