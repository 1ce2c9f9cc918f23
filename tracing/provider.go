// Package tracing은 저장소 프로바이더 호출마다 OpenTelemetry span을 남기는 래퍼를 제공합니다.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bridgify/agingcache/core"
)

// TracerName은 기본 tracer 이름입니다.
const TracerName = "github.com/bridgify/agingcache"

// Config는 추적 래퍼 설정입니다.
type Config struct {
	// Tracer는 span을 만들 tracer입니다. nil이면 전역 TracerProvider의 TracerName입니다.
	Tracer trace.Tracer

	// Level은 span 속성으로 붙일 계층 번호입니다.
	Level int

	// Name은 span 이름 앞부분입니다. (예: "redis" → "redis.Get")
	Name string

	// RecordKeys가 true면 키를 span 속성으로 기록합니다.
	RecordKeys bool
}

// Provider는 StorageProvider를 감싸 호출마다 span을 만듭니다.
type Provider[K comparable, V any] struct {
	provider core.StorageProvider[K, V]
	tracer   trace.Tracer
	name     string
	attrs    []attribute.KeyValue
	keys     bool
}

// Wrap은 프로바이더를 추적 래퍼로 감쌉니다.
// 원본이 구독 가능하면 반환값도 core.SubscribableProvider를 구현합니다.
func Wrap[K comparable, V any](provider core.StorageProvider[K, V], config *Config) core.StorageProvider[K, V] {
	p := New(provider, config)
	if sub, ok := core.AsSubscribable(provider); ok {
		return &subscribableProvider[K, V]{Provider: p, sub: sub}
	}
	return p
}

// New는 추적 래퍼를 생성합니다.
func New[K comparable, V any](provider core.StorageProvider[K, V], config *Config) *Provider[K, V] {
	if config == nil {
		config = &Config{}
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	name := config.Name
	if name == "" {
		name = "storage"
	}

	return &Provider[K, V]{
		provider: provider,
		tracer:   tracer,
		name:     name,
		attrs: []attribute.KeyValue{
			attribute.Int("cache.storage_level", config.Level),
			attribute.Bool("cache.persistable", provider.IsPersistable()),
		},
		keys: config.RecordKeys,
	}
}

// Unwrap은 원본 프로바이더를 반환합니다.
func (p *Provider[K, V]) Unwrap() core.StorageProvider[K, V] {
	return p.provider
}

func (p *Provider[K, V]) start(ctx context.Context, op string, key *K) (context.Context, trace.Span) {
	attrs := p.attrs
	if key != nil && p.keys {
		attrs = append(attrs[:len(attrs):len(attrs)], attribute.String("cache.key", fmt.Sprint(*key)))
	}
	return p.tracer.Start(ctx, p.name+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// =============================================================================
// StorageProvider 구현
// =============================================================================

func (p *Provider[K, V]) IsPersistable() bool {
	return p.provider.IsPersistable()
}

func (p *Provider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	ctx, span := p.start(ctx, "Get", &key)
	value, err := p.provider.Get(ctx, key)
	span.SetAttributes(attribute.Bool("cache.hit", value != nil))
	finish(span, err)
	return value, err
}

func (p *Provider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	ctx, span := p.start(ctx, "Set", &key)
	ok, err := p.provider.Set(ctx, key, value)
	span.SetAttributes(attribute.Int64("cache.age", value.Age), attribute.Bool("cache.accepted", ok))
	finish(span, err)
	return ok, err
}

func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	ctx, span := p.start(ctx, "Delete", &key)
	ok, err := p.provider.Delete(ctx, key)
	span.SetAttributes(attribute.Bool("cache.accepted", ok))
	finish(span, err)
	return ok, err
}

func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	ctx, span := p.start(ctx, "Keys", nil)
	keys, err := p.provider.Keys(ctx)
	span.SetAttributes(attribute.Int("cache.keys", len(keys)))
	finish(span, err)
	return keys, err
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	ctx, span := p.start(ctx, "Size", nil)
	size, err := p.provider.Size(ctx)
	span.SetAttributes(attribute.Int("cache.size", size))
	finish(span, err)
	return size, err
}

// subscribableProvider는 구독 등록을 원본에 그대로 전달합니다.
type subscribableProvider[K comparable, V any] struct {
	*Provider[K, V]
	sub core.SubscribableProvider[K, V]
}

func (p *subscribableProvider[K, V]) Subscribe(handler core.UpdateHandler[K, V]) bool {
	return p.sub.Subscribe(handler)
}

func (p *subscribableProvider[K, V]) Unsubscribe(handler core.UpdateHandler[K, V]) bool {
	return p.sub.Unsubscribe(handler)
}
