package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bridgify/agingcache/core"
)

// =============================================================================
// SharedStore: 프로세스 안에서 공유되는 구독 가능한 저장소
// =============================================================================
// 여러 캐시 인스턴스(노드)가 같은 저장소를 최상위 계층으로 쓰는 상황을
// 한 프로세스 안에서 재현합니다. 각 노드는 Provider()로 자신의 뷰를 얻고,
// 한 뷰의 쓰기는 다른 모든 뷰의 구독 핸들러에 전달됩니다.
// 쓴 노드 자신에게는 알리지 않습니다.
// =============================================================================

// SharedConfig는 공유 저장소 설정입니다.
type SharedConfig struct {
	// Persistable은 이 저장소를 영속 계층으로 취급할지 여부입니다.
	Persistable bool

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger
}

// SharedStore는 여러 SharedProvider가 공유하는 저장소입니다.
type SharedStore[K comparable, V any] struct {
	config *SharedConfig
	logger *slog.Logger
	data   *shardedMap[K, core.AgedValue[V]]
	views  []*SharedProvider[K, V]
	mu     sync.RWMutex
}

// NewSharedStore는 새로운 공유 저장소를 생성합니다.
func NewSharedStore[K comparable, V any](config *SharedConfig) *SharedStore[K, V] {
	if config == nil {
		config = &SharedConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedStore[K, V]{
		config: config,
		logger: logger.With("component", "shared-memory-provider"),
		data:   newShardedMap[K, core.AgedValue[V]](),
	}
}

// Provider는 저장소에 연결된 새 뷰를 반환합니다.
func (s *SharedStore[K, V]) Provider() *SharedProvider[K, V] {
	p := &SharedProvider[K, V]{store: s}

	s.mu.Lock()
	s.views = append(s.views, p)
	s.mu.Unlock()
	return p
}

// notify는 from을 제외한 모든 뷰에 변경을 알립니다. 락 밖에서 호출됩니다.
func (s *SharedStore[K, V]) notify(ctx context.Context, from *SharedProvider[K, V], key K, value *core.AgedValue[V]) {
	s.mu.RLock()
	views := make([]*SharedProvider[K, V], len(s.views))
	copy(views, s.views)
	s.mu.RUnlock()

	for _, v := range views {
		if v != from {
			v.dispatch(ctx, key, value)
		}
	}
}

// SharedProvider는 SharedStore의 노드별 뷰입니다.
type SharedProvider[K comparable, V any] struct {
	store    *SharedStore[K, V]
	handlers []core.UpdateHandler[K, V]
	mu       sync.RWMutex
}

func (p *SharedProvider[K, V]) IsPersistable() bool { return p.store.config.Persistable }

func (p *SharedProvider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	v, ok := p.store.data.get(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *SharedProvider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	p.store.data.set(key, value)
	p.store.notify(ctx, p, key, &value)
	return true, nil
}

func (p *SharedProvider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	p.store.data.delete(key)
	p.store.notify(ctx, p, key, nil)
	return true, nil
}

func (p *SharedProvider[K, V]) Keys(ctx context.Context) ([]K, error) {
	return p.store.data.keys(), nil
}

func (p *SharedProvider[K, V]) Size(ctx context.Context) (int, error) {
	return p.store.data.len(), nil
}

// Subscribe는 핸들러를 등록합니다. 이미 등록된 핸들러면 false입니다.
func (p *SharedProvider[K, V]) Subscribe(handler core.UpdateHandler[K, V]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.handlers {
		if h == handler {
			p.store.logger.Warn("handler already subscribed")
			return false
		}
	}
	p.handlers = append(p.handlers, handler)
	return true
}

// Unsubscribe는 핸들러를 해제합니다.
func (p *SharedProvider[K, V]) Unsubscribe(handler core.UpdateHandler[K, V]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, h := range p.handlers {
		if h == handler {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return true
		}
	}
	p.store.logger.Warn("unsubscribing unknown handler")
	return false
}

func (p *SharedProvider[K, V]) dispatch(ctx context.Context, key K, value *core.AgedValue[V]) {
	p.mu.RLock()
	handlers := make([]core.UpdateHandler[K, V], len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		h.OnUpdate(ctx, key, value)
	}
}
