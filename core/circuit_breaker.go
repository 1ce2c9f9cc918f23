// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 프로바이더용 Circuit Breaker를 구현합니다.
package core

import (
	"context"
	"sync/atomic"
	"time"
)

// =============================================================================
// Circuit Breaker: 장애 계층 우회
// =============================================================================
// 원격 계층(Redis, PostgreSQL, S3 등)이 연속으로 실패하면 일정 시간 동안
// 호출하지 않고 ErrCircuitOpen을 돌려줍니다. 계층은 에러를 미스/쓰기 실패로
// 처리하므로 캐시는 남은 계층으로 계속 동작합니다.
//
// 상태:
// - Closed: 정상 동작, 요청 통과
// - Open: 장애 상태, 요청 즉시 실패
// - HalfOpen: 복구 테스트 중, 일부 요청만 통과
// =============================================================================

// CircuitState는 서킷 브레이커 상태입니다.
type CircuitState int32

const (
	StateClosed   CircuitState = iota // 정상
	StateOpen                         // 차단
	StateHalfOpen                     // 복구 테스트 중
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig는 서킷 브레이커 설정입니다.
type CircuitBreakerConfig struct {
	// FailureThreshold는 Open 상태로 전환하기 위한 연속 실패 횟수입니다.
	FailureThreshold int

	// SuccessThreshold는 Closed 상태로 복구하기 위한 연속 성공 횟수입니다.
	SuccessThreshold int

	// Timeout은 Open 상태에서 HalfOpen으로 전환되기까지의 시간입니다.
	Timeout time.Duration

	// MaxHalfOpenRequests는 HalfOpen 상태에서 허용되는 최대 동시 요청 수입니다.
	MaxHalfOpenRequests int

	// OnStateChange는 상태 변경 시 별도 고루틴에서 호출됩니다.
	OnStateChange func(from, to CircuitState)

	// Clock은 현재 시간 함수입니다. nil이면 time.Now입니다.
	Clock func() time.Time
}

// DefaultCircuitBreakerConfig는 기본 설정을 반환합니다.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// CircuitBreaker는 서킷 브레이커입니다.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	clock  func() time.Time

	state            atomic.Int32
	failures         atomic.Int32
	successes        atomic.Int32
	lastFailureTime  atomic.Int64 // unix nano
	halfOpenRequests atomic.Int32
}

// NewCircuitBreaker는 새로운 서킷 브레이커를 생성합니다.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	cb := &CircuitBreaker{config: config, clock: clock}
	cb.state.Store(int32(StateClosed))
	return cb
}

// State는 현재 상태를 반환합니다.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// Allow는 요청을 허용할지 결정합니다.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.State() {
	case StateClosed:
		return true

	case StateOpen:
		lastFailure := cb.lastFailureTime.Load()
		if cb.clock().Sub(time.Unix(0, lastFailure)) > cb.config.Timeout {
			cb.transitionTo(StateHalfOpen)
			return cb.tryHalfOpenRequest()
		}
		return false

	case StateHalfOpen:
		return cb.tryHalfOpenRequest()

	default:
		return true
	}
}

func (cb *CircuitBreaker) tryHalfOpenRequest() bool {
	current := cb.halfOpenRequests.Add(1)
	if int(current) <= cb.config.MaxHalfOpenRequests {
		return true
	}
	cb.halfOpenRequests.Add(-1)
	return false
}

// RecordSuccess는 성공을 기록합니다.
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateClosed:
		cb.failures.Store(0)

	case StateHalfOpen:
		cb.halfOpenRequests.Add(-1)
		if int(cb.successes.Add(1)) >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	}
}

// RecordFailure는 실패를 기록합니다.
func (cb *CircuitBreaker) RecordFailure() {
	cb.lastFailureTime.Store(cb.clock().UnixNano())

	switch cb.State() {
	case StateClosed:
		if int(cb.failures.Add(1)) >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		cb.halfOpenRequests.Add(-1)
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	oldState := CircuitState(cb.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		cb.failures.Store(0)
		cb.successes.Store(0)
	case StateOpen:
		cb.successes.Store(0)
	case StateHalfOpen:
		cb.halfOpenRequests.Store(0)
		cb.successes.Store(0)
	}

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(oldState, newState)
	}
}

// Reset은 서킷 브레이커를 초기 상태로 리셋합니다.
func (cb *CircuitBreaker) Reset() {
	cb.transitionTo(StateClosed)
}

// do는 서킷 브레이커를 거쳐 fn을 실행합니다.
func (cb *CircuitBreaker) do(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// =============================================================================
// ResilientProvider: 서킷 브레이커가 적용된 프로바이더
// =============================================================================
// 쓰기 거부(false)는 저장소가 정상 응답한 것이므로 실패로 세지 않습니다.
// =============================================================================

// ResilientProvider는 서킷 브레이커가 적용된 프로바이더 래퍼입니다.
type ResilientProvider[K comparable, V any] struct {
	provider StorageProvider[K, V]
	cb       *CircuitBreaker
}

// NewResilientProvider는 새로운 ResilientProvider를 생성합니다.
func NewResilientProvider[K comparable, V any](provider StorageProvider[K, V], config *CircuitBreakerConfig) *ResilientProvider[K, V] {
	return &ResilientProvider[K, V]{
		provider: provider,
		cb:       NewCircuitBreaker(config),
	}
}

// WithCircuitBreaker는 프로바이더를 서킷 브레이커로 감쌉니다.
// 원본이 구독을 지원하면 반환값도 SubscribableProvider를 구현합니다.
func WithCircuitBreaker[K comparable, V any](provider StorageProvider[K, V], config *CircuitBreakerConfig) StorageProvider[K, V] {
	r := NewResilientProvider(provider, config)
	if sub, ok := AsSubscribable(provider); ok {
		return &resilientSubscribableProvider[K, V]{ResilientProvider: r, sub: sub}
	}
	return r
}

func (r *ResilientProvider[K, V]) IsPersistable() bool {
	return r.provider.IsPersistable()
}

func (r *ResilientProvider[K, V]) Get(ctx context.Context, key K) (*AgedValue[V], error) {
	var value *AgedValue[V]
	err := r.cb.do(func() error {
		var err error
		value, err = r.provider.Get(ctx, key)
		return err
	})
	return value, err
}

func (r *ResilientProvider[K, V]) Set(ctx context.Context, key K, value AgedValue[V]) (bool, error) {
	var ok bool
	err := r.cb.do(func() error {
		var err error
		ok, err = r.provider.Set(ctx, key, value)
		return err
	})
	return ok, err
}

func (r *ResilientProvider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	var ok bool
	err := r.cb.do(func() error {
		var err error
		ok, err = r.provider.Delete(ctx, key)
		return err
	})
	return ok, err
}

func (r *ResilientProvider[K, V]) Keys(ctx context.Context) ([]K, error) {
	var keys []K
	err := r.cb.do(func() error {
		var err error
		keys, err = r.provider.Keys(ctx)
		return err
	})
	return keys, err
}

func (r *ResilientProvider[K, V]) Size(ctx context.Context) (int, error) {
	var size int
	err := r.cb.do(func() error {
		var err error
		size, err = r.provider.Size(ctx)
		return err
	})
	return size, err
}

// CircuitBreaker는 내부 서킷 브레이커를 반환합니다.
func (r *ResilientProvider[K, V]) CircuitBreaker() *CircuitBreaker {
	return r.cb
}

// Unwrap은 원본 프로바이더를 반환합니다.
func (r *ResilientProvider[K, V]) Unwrap() StorageProvider[K, V] {
	return r.provider
}

// resilientSubscribableProvider는 구독 등록은 서킷과 무관하게 원본에 전달합니다.
type resilientSubscribableProvider[K comparable, V any] struct {
	*ResilientProvider[K, V]
	sub SubscribableProvider[K, V]
}

func (r *resilientSubscribableProvider[K, V]) Subscribe(handler UpdateHandler[K, V]) bool {
	return r.sub.Subscribe(handler)
}

func (r *resilientSubscribableProvider[K, V]) Unsubscribe(handler UpdateHandler[K, V]) bool {
	return r.sub.Unsubscribe(handler)
}
