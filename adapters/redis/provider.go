// Package redis는 Redis 저장소 프로바이더를 구현합니다.
// 여러 프로세스가 공유하는 계층으로 사용되며, Pub/Sub으로 변경을 전파할 수 있습니다.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

// =============================================================================
// Provider: Redis 저장소 프로바이더
// =============================================================================
// 키는 KeyPrefix + KeyCodec 결과 문자열이고, 값은 Codec으로 인코딩한
// AgedValue 봉투입니다. 만료(TTL)는 쓰지 않습니다. 퇴거는 캐시의 큐가 결정합니다.
// =============================================================================

// Config는 Redis 프로바이더 설정입니다.
type Config struct {
	// Addr은 Redis 서버 주소입니다. (예: "localhost:6379")
	Addr string

	// Password는 Redis 인증 비밀번호입니다.
	Password string

	// DB는 Redis 데이터베이스 번호입니다. (기본: 0)
	DB int

	// KeyPrefix는 모든 키에 붙는 접두사입니다.
	KeyPrefix string

	// PoolSize는 연결 풀 크기입니다.
	PoolSize int

	// MinIdleConns는 최소 유휴 연결 수입니다.
	MinIdleConns int

	// DialTimeout은 연결 타임아웃입니다.
	DialTimeout time.Duration

	// ReadTimeout은 읽기 타임아웃입니다.
	ReadTimeout time.Duration

	// WriteTimeout은 쓰기 타임아웃입니다.
	WriteTimeout time.Duration

	// MaxRetries는 최대 재시도 횟수입니다.
	MaxRetries int

	// ScanCount는 SCAN 한 번에 요청할 키 수입니다.
	ScanCount int64

	// Persistable은 AOF/RDB가 켜진 Redis를 영속 계층으로 취급할지 여부입니다.
	Persistable bool

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "agingcache:",
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
		ScanCount:    1000,
	}
}

// Provider는 Redis 저장소 프로바이더입니다.
type Provider[K comparable, V any] struct {
	config *Config
	client redis.UniversalClient
	keys   serializer.KeyCodec[K]
	codec  serializer.Codec[core.AgedValue[V]]
	logger *slog.Logger

	// ownsClient가 true면 Close가 클라이언트도 닫습니다.
	ownsClient bool
}

// =============================================================================
// Provider 생성자
// =============================================================================

// New는 설정으로 클라이언트를 만들어 프로바이더를 생성합니다.
// 연결은 첫 명령 때 맺어지며, 미리 확인하려면 Ping을 호출합니다.
//
// Parameters:
//   - config: 프로바이더 설정 (nil이면 기본값)
//   - keys: 키 변환 코덱
//   - codec: 값 코덱 (nil이면 MessagePack)
func New[K comparable, V any](config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[core.AgedValue[V]]) *Provider[K, V] {
	if config == nil {
		config = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		MaxRetries:   config.MaxRetries,
	})

	p := NewWithClient(client, config, keys, codec)
	p.ownsClient = true
	return p
}

// NewWithClient는 기존 클라이언트로 프로바이더를 생성합니다. Close는 클라이언트를 닫지 않습니다.
func NewWithClient[K comparable, V any](client redis.UniversalClient, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[core.AgedValue[V]]) *Provider[K, V] {
	if config == nil {
		config = DefaultConfig()
	}
	if codec == nil {
		codec = serializer.MsgPack[core.AgedValue[V]]()
	}
	if config.ScanCount <= 0 {
		config.ScanCount = 1000
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider[K, V]{
		config: config,
		client: client,
		keys:   keys,
		codec:  codec,
		logger: logger.With("component", "redis-provider"),
	}
}

// Ping은 Redis가 응답하는지 확인합니다.
func (p *Provider[K, V]) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client는 내부 Redis 클라이언트를 반환합니다.
func (p *Provider[K, V]) Client() redis.UniversalClient {
	return p.client
}

// Close는 New로 만든 클라이언트를 닫습니다.
func (p *Provider[K, V]) Close() error {
	if !p.ownsClient {
		return nil
	}
	return p.client.Close()
}

// =============================================================================
// StorageProvider 구현
// =============================================================================

// prefixKey는 키를 Redis 키 문자열로 만듭니다.
func (p *Provider[K, V]) prefixKey(key K) (string, error) {
	s, err := p.keys.EncodeKey(key)
	if err != nil {
		return "", err
	}
	return p.config.KeyPrefix + s, nil
}

func (p *Provider[K, V]) IsPersistable() bool {
	return p.config.Persistable
}

func (p *Provider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	rkey, err := p.prefixKey(key)
	if err != nil {
		return nil, err
	}

	data, err := p.client.Get(ctx, rkey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	value, err := p.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("redis decode error: %w", err)
	}
	return &value, nil
}

func (p *Provider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	rkey, err := p.prefixKey(key)
	if err != nil {
		return false, err
	}

	data, err := p.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("redis encode error: %w", err)
	}

	if err := p.client.Set(ctx, rkey, data, 0).Err(); err != nil {
		return false, fmt.Errorf("redis set error: %w", err)
	}
	return true, nil
}

// Delete는 키를 삭제합니다. 없는 키여도 true입니다.
func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	_, err := p.del(ctx, key)
	if err != nil {
		return false, err
	}
	return true, nil
}

// del은 실제로 지워진 키 수를 반환합니다.
func (p *Provider[K, V]) del(ctx context.Context, key K) (int64, error) {
	rkey, err := p.prefixKey(key)
	if err != nil {
		return 0, err
	}

	n, err := p.client.Del(ctx, rkey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del error: %w", err)
	}
	return n, nil
}

// Keys는 접두사로 시작하는 모든 키를 SCAN으로 조회합니다.
func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	pattern := p.config.KeyPrefix + "*"

	var keys []K
	var cursor uint64
	for {
		batch, next, err := p.client.Scan(ctx, cursor, pattern, p.config.ScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan error: %w", err)
		}

		for _, rkey := range batch {
			key, err := p.keys.DecodeKey(rkey[len(p.config.KeyPrefix):])
			if err != nil {
				p.logger.Warn("skipping undecodable key", "redis_key", rkey, "error", err)
				continue
			}
			keys = append(keys, key)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	keys, err := p.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
