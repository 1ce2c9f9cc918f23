// Package agingcache는 age 기반 다중 계층 캐시 라이브러리입니다.
//
// 특징:
//   - 계층 0(가장 빠름)부터 최상위(가장 느리고 영속적)까지 N개의 저장 계층
//   - 모든 값에 age가 붙고, 계층 간 충돌은 age 비교로 해결
//   - FIFO Aged Queue 기반 퇴거와 주기적 퍼지
//   - Redis Pub/Sub 등 구독 가능한 계층의 변경을 하위 계층에 자동 반영
//   - Memory, Redis, PostgreSQL, SQLite, S3 프로바이더
//
// 기본 사용법:
//
//	cache, err := agingcache.NewBuilder[string, User](serializer.StringKeys[string]()).
//	    AddMemoryLevel(10000).
//	    AddRedisLevel(&redis.Config{Addr: "localhost:6379"}, true).
//	    AddPostgresLevel(&postgres.Config{DSN: dsn}).
//	    WithOptions(agingcache.WithMaxEntries(100000)).
//	    Build(ctx)
//	defer cache.Close()
//
//	cache.Set(ctx, "alice", user)
//	user, ok := cache.Get(ctx, "alice")
package agingcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bridgify/agingcache/adapters/memory"
	"github.com/bridgify/agingcache/adapters/postgres"
	"github.com/bridgify/agingcache/adapters/redis"
	"github.com/bridgify/agingcache/adapters/s3"
	"github.com/bridgify/agingcache/adapters/sqlite"
	"github.com/bridgify/agingcache/compression"
	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
	"github.com/bridgify/agingcache/tracing"
)

// =============================================================================
// Re-export: 외부에서 사용할 타입들
// =============================================================================

type (
	AgedValue[V any]                          = core.AgedValue[V]
	StorageProvider[K comparable, V any]      = core.StorageProvider[K, V]
	SubscribableProvider[K comparable, V any] = core.SubscribableProvider[K, V]
	Options                                   = core.Options
	Option                                    = core.Option
	WriteStatus                               = core.WriteStatus
	WriteMode                                 = core.WriteMode
	Observer                                  = core.Observer
	CircuitBreakerConfig                      = core.CircuitBreakerConfig
	RehydrateConfig                           = core.RehydrateConfig
	RehydrateResult                           = core.RehydrateResult
)

const (
	Success          = core.Success
	Refreshed        = core.Refreshed
	RefreshedError   = core.RefreshedError
	PartialWrite     = core.PartialWrite
	UnspecifiedError = core.UnspecifiedError

	RefreshAlways   = core.RefreshAlways
	OverwriteAged   = core.OverwriteAged
	OverwriteAlways = core.OverwriteAlways
)

var (
	WithMaxEntries    = core.WithMaxEntries
	WithAgeLimit      = core.WithAgeLimit
	WithPurgeInterval = core.WithPurgeInterval
	WithSetMode       = core.WithSetMode
	WithDeleteMode    = core.WithDeleteMode
	WithEvictAtLevel  = core.WithEvictAtLevel
	WithClock         = core.WithClock
	Force             = core.Force

	ErrClosed         = core.ErrClosed
	ErrInvalidOptions = core.ErrInvalidOptions
	ErrTooFewLevels   = core.ErrTooFewLevels
)

// =============================================================================
// Cache: 계층과 프로바이더 수명을 함께 관리하는 캐시
// =============================================================================

// Cache는 core.AgingCache에 프로바이더 종료 책임을 더한 것입니다.
type Cache[K comparable, V any] struct {
	*core.AgingCache[K, V]

	hierarchy *core.Hierarchy[K, V]
	closers   []io.Closer
}

// Close는 캐시, 계층 구조, 프로바이더 순서로 닫습니다.
// 프로바이더는 추가된 역순으로 닫히며 에러는 모두 모아 반환합니다.
func (c *Cache[K, V]) Close() error {
	errs := []error{c.AgingCache.Close(), c.hierarchy.Close()}
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// Builder Pattern: 계층 구성
// =============================================================================

// levelFactory는 Build 시점에 계층 프로바이더를 만듭니다.
type levelFactory[K comparable, V any] func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error)

// Builder는 계층 구조와 캐시를 구성하는 빌더입니다.
// 계층은 추가한 순서대로 0, 1, 2... 번호를 받습니다.
type Builder[K comparable, V any] struct {
	keys      serializer.KeyCodec[K]
	format    serializer.Format
	compress  compression.Compressor
	threshold int

	levels    []levelFactory[K, V]
	opts      []core.Option
	hierarchy *core.HierarchyOptions
	observers core.Observers
	logger    *slog.Logger
	breaker   *core.CircuitBreakerConfig
	tracing   bool
}

// NewBuilder는 새로운 빌더를 생성합니다.
//
// Parameters:
//   - keys: 네트워크/영속 계층에서 키를 문자열로 바꾸는 코덱
func NewBuilder[K comparable, V any](keys serializer.KeyCodec[K]) *Builder[K, V] {
	return &Builder[K, V]{
		keys:      keys,
		format:    serializer.FormatJSON,
		threshold: compression.DefaultThreshold,
		hierarchy: core.DefaultHierarchyOptions(),
		logger:    slog.Default(),
	}
}

// WithLogger는 캐시, 계층, 프로바이더가 함께 쓸 로거를 설정합니다.
func (b *Builder[K, V]) WithLogger(logger *slog.Logger) *Builder[K, V] {
	b.logger = logger
	return b
}

// WithOptions는 캐시 옵션을 추가합니다.
func (b *Builder[K, V]) WithOptions(opts ...core.Option) *Builder[K, V] {
	b.opts = append(b.opts, opts...)
	return b
}

// WithHierarchyOptions는 계층 구조 옵션을 설정합니다. Logger와 Observer는 빌더 값이 우선합니다.
func (b *Builder[K, V]) WithHierarchyOptions(opts *core.HierarchyOptions) *Builder[K, V] {
	b.hierarchy = opts
	return b
}

// WithObserver는 캐시와 계층 이벤트를 받을 Observer를 추가합니다.
func (b *Builder[K, V]) WithObserver(observer core.Observer) *Builder[K, V] {
	b.observers = append(b.observers, observer)
	return b
}

// WithSerializer는 네트워크/영속 계층의 값 직렬화 형식을 설정합니다.
func (b *Builder[K, V]) WithSerializer(format serializer.Format) *Builder[K, V] {
	b.format = format
	return b
}

// WithCompression은 threshold 바이트 이상의 인코딩된 값을 압축합니다.
func (b *Builder[K, V]) WithCompression(compressor compression.Compressor, threshold int) *Builder[K, V] {
	b.compress = compressor
	b.threshold = threshold
	return b
}

// WithCircuitBreaker는 메모리가 아닌 모든 계층을 서킷 브레이커로 감쌉니다.
func (b *Builder[K, V]) WithCircuitBreaker(config *core.CircuitBreakerConfig) *Builder[K, V] {
	if config == nil {
		config = core.DefaultCircuitBreakerConfig()
	}
	b.breaker = config
	return b
}

// WithTracing은 모든 계층 호출에 OpenTelemetry span을 남깁니다.
func (b *Builder[K, V]) WithTracing() *Builder[K, V] {
	b.tracing = true
	return b
}

// =============================================================================
// Builder 계층 추가
// =============================================================================

// AddLevel은 이미 만들어진 프로바이더를 다음 계층으로 추가합니다.
// 프로바이더가 io.Closer면 Cache.Close가 닫습니다.
func (b *Builder[K, V]) AddLevel(provider core.StorageProvider[K, V]) *Builder[K, V] {
	b.levels = append(b.levels, func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error) {
		return provider, nil
	})
	return b
}

// AddMemoryLevel은 프로세스 메모리 계층을 추가합니다. maxSize가 0이면 무제한입니다.
func (b *Builder[K, V]) AddMemoryLevel(maxSize int) *Builder[K, V] {
	return b.AddLevel(memory.New[K, V](&memory.Config{MaxSize: maxSize}))
}

// AddSharedMemoryLevel은 여러 캐시가 공유하는 메모리 저장소의 뷰를 계층으로 추가합니다.
func (b *Builder[K, V]) AddSharedMemoryLevel(store *memory.SharedStore[K, V]) *Builder[K, V] {
	return b.AddLevel(store.Provider())
}

// AddRedisLevel은 Redis 계층을 추가합니다. pubsub이 true면 변경을 발행하고 구독합니다.
// Redis 값은 WithSerializer와 무관하게 MessagePack 봉투로 저장됩니다.
func (b *Builder[K, V]) AddRedisLevel(config *redis.Config, pubsub bool) *Builder[K, V] {
	b.levels = append(b.levels, func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error) {
		if config == nil {
			config = redis.DefaultConfig()
		}
		if config.Logger == nil {
			config.Logger = b.logger
		}
		codec, err := buildCodec[core.AgedValue[V]](serializer.FormatMsgPack, b.compress, b.threshold)
		if err != nil {
			return nil, err
		}

		provider := redis.New[K, V](config, b.keys, codec)
		if err := provider.Ping(ctx); err != nil {
			provider.Close()
			return nil, err
		}
		if !pubsub {
			return provider, nil
		}
		return redis.NewPubSub(provider, &redis.PubSubConfig{SkipOwnMessages: true}), nil
	})
	return b
}

// AddPostgresLevel은 PostgreSQL 계층을 추가합니다.
func (b *Builder[K, V]) AddPostgresLevel(config *postgres.Config) *Builder[K, V] {
	b.levels = append(b.levels, func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error) {
		if config == nil {
			config = postgres.DefaultConfig()
		}
		if config.Logger == nil {
			config.Logger = b.logger
		}
		codec, err := buildCodec[V](b.format, b.compress, b.threshold)
		if err != nil {
			return nil, err
		}
		return postgres.New(ctx, config, b.keys, codec)
	})
	return b
}

// AddSQLiteLevel은 SQLite 계층을 추가합니다.
func (b *Builder[K, V]) AddSQLiteLevel(config *sqlite.Config) *Builder[K, V] {
	b.levels = append(b.levels, func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error) {
		if config == nil {
			config = sqlite.DefaultConfig()
		}
		if config.Logger == nil {
			config.Logger = b.logger
		}
		codec, err := buildCodec[V](b.format, b.compress, b.threshold)
		if err != nil {
			return nil, err
		}
		return sqlite.New(ctx, config, b.keys, codec)
	})
	return b
}

// AddS3Level은 S3 계층을 추가합니다.
func (b *Builder[K, V]) AddS3Level(config *s3.Config) *Builder[K, V] {
	b.levels = append(b.levels, func(ctx context.Context, b *Builder[K, V]) (core.StorageProvider[K, V], error) {
		if config == nil {
			config = s3.DefaultConfig()
		}
		if config.Logger == nil {
			config.Logger = b.logger
		}
		codec, err := buildCodec[core.AgedValue[V]](b.format, b.compress, b.threshold)
		if err != nil {
			return nil, err
		}
		return s3.New(ctx, config, b.keys, codec)
	})
	return b
}

// buildCodec은 형식과 압축 설정으로 T 코덱을 만듭니다.
func buildCodec[T any](format serializer.Format, compressor compression.Compressor, threshold int) (serializer.Codec[T], error) {
	s, err := serializer.New(format)
	if err != nil {
		return nil, err
	}
	codec := serializer.NewCodec[T](s)
	if compressor == nil {
		return codec, nil
	}
	return compression.NewCodec(codec, compressor, threshold), nil
}

// =============================================================================
// Build
// =============================================================================

// listener는 Build가 끝난 뒤 구독을 시작해야 하는 프로바이더입니다.
type listener interface {
	Listen(ctx context.Context) (bool, error)
}

// Build는 프로바이더를 만들고 계층 구조와 캐시를 구성합니다.
// 실패하면 이미 만든 프로바이더를 모두 닫습니다.
func (b *Builder[K, V]) Build(ctx context.Context) (*Cache[K, V], error) {
	if len(b.levels) < 2 {
		return nil, fmt.Errorf("%w: got %d", core.ErrTooFewLevels, len(b.levels))
	}

	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	providers := make([]core.StorageProvider[K, V], 0, len(b.levels))
	var listeners []listener
	for level, factory := range b.levels {
		provider, err := factory(ctx, b)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("level %d: %w", level, err)
		}
		if c, ok := provider.(io.Closer); ok {
			closers = append(closers, c)
		}
		if l, ok := provider.(listener); ok {
			listeners = append(listeners, l)
		}
		providers = append(providers, b.wrap(level, provider))
	}

	hopts := *b.hierarchy
	hopts.Logger = b.logger
	if len(b.observers) > 0 {
		hopts.Observer = b.observers
	}
	hierarchy, err := core.NewHierarchy(providers, &hopts)
	if err != nil {
		closeAll()
		return nil, err
	}

	opts := append([]core.Option{core.WithLogger(b.logger)}, b.opts...)
	if len(b.observers) > 0 {
		opts = append(opts, core.WithObserver(b.observers))
	}
	cache, err := core.NewAgingCache(hierarchy, opts...)
	if err != nil {
		hierarchy.Close()
		closeAll()
		return nil, err
	}

	result := &Cache[K, V]{AgingCache: cache, hierarchy: hierarchy, closers: closers}
	for _, l := range listeners {
		if _, err := l.Listen(ctx); err != nil {
			result.Close()
			return nil, err
		}
	}
	return result, nil
}

// wrap은 설정에 따라 추적과 서킷 브레이커를 씌웁니다. 메모리 계층은 서킷을 씌우지 않습니다.
func (b *Builder[K, V]) wrap(level int, provider core.StorageProvider[K, V]) core.StorageProvider[K, V] {
	local := isMemory(provider)
	if b.tracing {
		provider = tracing.Wrap(provider, &tracing.Config{Level: level, Name: fmt.Sprintf("level%d", level)})
	}
	if b.breaker != nil && !local {
		provider = core.WithCircuitBreaker(provider, b.breaker)
	}
	return provider
}

func isMemory[K comparable, V any](provider core.StorageProvider[K, V]) bool {
	switch provider.(type) {
	case *memory.Provider[K, V], *memory.SharedProvider[K, V]:
		return true
	default:
		return false
	}
}
