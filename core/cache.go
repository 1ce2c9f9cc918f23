// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 메인 캐시 엔진을 구현합니다.
package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// =============================================================================
// AgingCache: 다계층 에이징 캐시 메인 엔진
// =============================================================================
// AgingCache는 Aged Queue, Hierarchy, 두 쓰기 전략을 묶어
// get/set/delete/keys/purge를 제공합니다.
//
// 생성 시 PurgeInterval 주기의 타이머가 시작되며, 타이머와 수동 Purge는
// 같은 진입점을 공유하므로 두 퍼지가 동시에 돌지 않습니다.
// =============================================================================

// purgeKey는 퍼지 합치기(singleflight)용 키입니다.
const purgeKey = "purge"

// AgingCache는 다계층 에이징 캐시입니다.
type AgingCache[K comparable, V any] struct {
	hierarchy      *Hierarchy[K, V]
	queue          AgedQueue[K]
	setStrategy    SetStrategy[K, V]
	deleteStrategy DeleteStrategy[K, V]

	// evictAtLevel이 nil이 아니면 퇴거 시 이 계층까지만 지웁니다.
	evictAtLevel  *int
	purgeInterval time.Duration

	logger   *slog.Logger
	observer Observer

	// purges는 동시에 요청된 퍼지를 하나로 합칩니다.
	purges singleflight.Group

	// inflight는 퍼지 결과를 기다리는 호출 수입니다. Close가 기다립니다.
	inflight sync.WaitGroup

	stopCh   chan struct{}
	loopDone chan struct{}
	closed   bool

	mu sync.Mutex
}

// =============================================================================
// 개별 연산 옵션
// =============================================================================

// OpOption은 Get/Set/Delete 한 번의 동작을 바꿉니다.
type OpOption func(*opOptions)

type opOptions struct {
	force bool
}

// Force는 충돌 해결을 건너뛰고 무조건 쓰기 경로를 탑니다.
// Get에서는 최상위 계층부터 내려가며 읽습니다.
func Force() OpOption {
	return func(o *opOptions) {
		o.force = true
	}
}

func applyOpOptions(opts []OpOption) opOptions {
	var o opOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// AgingCache 생성
// =============================================================================

// newAgingCache는 검증이 끝난 구성요소로 캐시를 만들고 퍼지 타이머를 시작합니다.
func newAgingCache[K comparable, V any](
	hierarchy *Hierarchy[K, V],
	queue AgedQueue[K],
	setStrategy SetStrategy[K, V],
	deleteStrategy DeleteStrategy[K, V],
	options *Options,
	logger *slog.Logger,
) *AgingCache[K, V] {
	c := &AgingCache[K, V]{
		hierarchy:      hierarchy,
		queue:          queue,
		setStrategy:    setStrategy,
		deleteStrategy: deleteStrategy,
		evictAtLevel:   options.EvictAtLevel,
		purgeInterval:  options.PurgeInterval,
		logger:         logger.With("component", "aging-cache"),
		observer:       observerOrNop(options.Observer),
		stopCh:         make(chan struct{}),
		loopDone:       make(chan struct{}),
	}

	go c.purgeLoop()
	return c
}

// Hierarchy는 캐시가 사용하는 계층 구조를 반환합니다.
func (c *AgingCache[K, V]) Hierarchy() *Hierarchy[K, V] {
	return c.hierarchy
}

// Len은 퇴거 큐가 추적 중인 키 개수를 반환합니다.
func (c *AgingCache[K, V]) Len() int {
	return c.queue.Size()
}

// =============================================================================
// AgingCache 공개 연산
// =============================================================================

// Get은 키의 값을 조회합니다. 기본적으로 계층 0부터 위로 읽고,
// Force()가 주어지면 최상위 계층부터 아래로 읽습니다.
// 키가 없으면 (zero, false)입니다.
func (c *AgingCache[K, V]) Get(ctx context.Context, key K, opts ...OpOption) (V, bool) {
	o := applyOpOptions(opts)
	start := time.Now()
	c.logger.Debug("getting key", "key", key)

	var value *AgedValue[V]
	var level int
	if o.force {
		value, level = c.hierarchy.getAtLevel(ctx, key, c.hierarchy.TopLevel(), false)
	} else {
		value, level = c.hierarchy.getAtLevel(ctx, key, 0, true)
	}

	c.observer.OnGet(key, level, value != nil, time.Since(start))

	if value == nil {
		var zero V
		return zero, false
	}
	return value.Value, true
}

// Set은 값을 저장합니다. 퇴거가 필요하면 먼저 가장 오래된 키 하나를 퇴거합니다.
func (c *AgingCache[K, V]) Set(ctx context.Context, key K, value V, opts ...OpOption) WriteStatus {
	o := applyOpOptions(opts)
	start := time.Now()
	c.logger.Debug("setting key", "key", key)

	if c.queue.IsNextExpired() {
		c.evict(ctx)
	}

	status := c.setStrategy.Set(ctx, key, value, o.force)
	c.observer.OnSet(key, status, time.Since(start))
	return status
}

// Delete는 키를 삭제합니다.
func (c *AgingCache[K, V]) Delete(ctx context.Context, key K, opts ...OpOption) WriteStatus {
	o := applyOpOptions(opts)
	start := time.Now()
	c.logger.Debug("deleting key", "key", key)

	status := c.deleteStrategy.Delete(ctx, key, o.force)
	c.observer.OnDelete(key, status, time.Since(start))
	return status
}

// Keys는 최상위 계층의 키 목록을 반환합니다.
func (c *AgingCache[K, V]) Keys(ctx context.Context) ([]K, error) {
	c.logger.Debug("getting key list")
	return c.hierarchy.GetKeysAtTopLevel(ctx)
}

// =============================================================================
// AgingCache 퍼지
// =============================================================================

// Purge는 만료된 키를 즉시 퇴거합니다. 이미 퍼지가 진행 중이면 새로 시작하지 않고
// 그 결과를 함께 기다립니다. ctx가 취소되면 기다리기만 멈추고 퍼지는 계속됩니다.
// 종료된 캐시에서는 ErrClosed를 반환합니다.
func (c *AgingCache[K, V]) Purge(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	ch := c.purges.DoChan(purgeKey, func() (any, error) {
		return c.purgeExpired(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		c.inflight.Done()
		return res.Err
	case <-ctx.Done():
		go func() {
			<-ch
			c.inflight.Done()
		}()
		return ctx.Err()
	}
}

// purgeExpired는 큐가 만료를 보고하는 동안 퇴거를 반복합니다.
// 퇴거가 Success가 아니면 멈추고 다음 주기에 다시 시도합니다.
func (c *AgingCache[K, V]) purgeExpired(ctx context.Context) (int, error) {
	start := time.Now()
	c.logger.Debug("starting purge")

	evicted := 0
	for c.queue.IsNextExpired() {
		status := c.evict(ctx)
		if status != Success {
			c.logger.Warn("purge stopped", "status", status.String(), "evicted", evicted)
			break
		}
		evicted++
	}

	c.observer.OnPurge(evicted, time.Since(start), nil)
	return evicted, nil
}

// evict는 큐의 다음 키 하나를 퇴거합니다.
func (c *AgingCache[K, V]) evict(ctx context.Context) WriteStatus {
	key, ok := c.queue.Next()
	if !ok {
		return UnspecifiedError
	}

	c.logger.Debug("evicting key", "key", key)
	status := c.deleteStrategy.Evict(ctx, key, c.evictAtLevel)
	c.observer.OnEviction(key, status)
	return status
}

// purgeLoop는 PurgeInterval마다 Purge를 호출합니다.
func (c *AgingCache[K, V]) purgeLoop() {
	defer close(c.loopDone)

	ticker := time.NewTicker(c.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.Purge(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Warn("scheduled purge failed", "error", err)
			}
		}
	}
}

// =============================================================================
// AgingCache 종료
// =============================================================================

// Close는 퍼지 타이머를 멈추고 진행 중인 퍼지가 끝날 때까지 기다립니다.
// 계층 구조와 프로바이더는 닫지 않습니다.
func (c *AgingCache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.logger.Info("cleaning up cache")
	close(c.stopCh)
	<-c.loopDone
	c.inflight.Wait()
	return nil
}
