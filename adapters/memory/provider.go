// Package memory는 인메모리 저장소 프로바이더를 구현합니다.
// 가장 빠른 계층 0으로 사용됩니다.
package memory

import (
	"context"

	"github.com/bridgify/agingcache/core"
)

// =============================================================================
// Provider: 인메모리 저장소 프로바이더
// =============================================================================
// 샤딩된 맵을 사용하여 락 경합을 최소화합니다.
// 프로세스가 종료되면 데이터가 사라지므로 영속적이지 않습니다.
// =============================================================================

// Config는 메모리 프로바이더 설정입니다.
type Config struct {
	// MaxSize는 최대 저장 항목 수입니다. 0이면 무제한입니다.
	// 가득 차면 새 키의 Set은 거절(false)됩니다. 동시 Set에서도 정확히 지켜집니다.
	MaxSize int
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		MaxSize: 0,
	}
}

// Provider는 인메모리 저장소 프로바이더입니다.
type Provider[K comparable, V any] struct {
	config *Config
	data   *shardedMap[K, core.AgedValue[V]]
}

// New는 새로운 메모리 프로바이더를 생성합니다.
func New[K comparable, V any](config *Config) *Provider[K, V] {
	if config == nil {
		config = DefaultConfig()
	}

	return &Provider[K, V]{
		config: config,
		data:   newShardedMap[K, core.AgedValue[V]](),
	}
}

// IsPersistable은 항상 false입니다.
func (p *Provider[K, V]) IsPersistable() bool { return false }

func (p *Provider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	v, ok := p.data.get(key)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (p *Provider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	return p.data.setLimited(key, value, p.config.MaxSize), nil
}

// Delete는 키를 삭제합니다. 없는 키여도 true를 반환합니다.
func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	p.data.delete(key)
	return true, nil
}

func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	return p.data.keys(), nil
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	return p.data.len(), nil
}

// Clear는 모든 항목을 삭제합니다.
func (p *Provider[K, V]) Clear() {
	p.data.clear()
}
