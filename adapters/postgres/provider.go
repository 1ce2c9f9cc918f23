// Package postgres는 PostgreSQL 저장소 프로바이더를 구현합니다.
// 영속 계층(보통 최상위)으로 쓰이며, 테이블 하나에 key, age, value를 저장합니다.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

// Config는 PostgreSQL 프로바이더 설정입니다.
type Config struct {
	// DSN은 PostgreSQL 연결 문자열입니다.
	DSN string

	// TableName은 캐시 테이블 이름입니다.
	TableName string

	// MaxOpenConns는 최대 열린 연결 수입니다.
	MaxOpenConns int

	// MaxIdleConns는 최대 유휴 연결 수입니다.
	MaxIdleConns int

	// ConnMaxLifetime은 연결의 최대 수명입니다.
	ConnMaxLifetime time.Duration

	// Persistable은 이 계층을 영속 계층으로 보고할지 여부입니다. (기본: true)
	Persistable bool

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		TableName:       "agingcache",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		Persistable:     true,
	}
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Provider는 PostgreSQL 저장소 프로바이더입니다.
type Provider[K comparable, V any] struct {
	config *Config
	db     *sql.DB
	keys   serializer.KeyCodec[K]
	codec  serializer.Codec[V]
	logger *slog.Logger

	getSQL    string
	upsertSQL string
	deleteSQL string
	keysSQL   string
	countSQL  string
}

// New는 연결을 열고 테이블을 만든 뒤 프로바이더를 반환합니다.
//
// Parameters:
//   - ctx: 연결 확인과 테이블 생성에 쓰이는 컨텍스트
//   - config: 프로바이더 설정 (DSN 필수)
//   - keys: 키 변환 코덱
//   - codec: 값 코덱 (nil이면 JSON)
func New[K comparable, V any](ctx context.Context, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[V]) (*Provider[K, V], error) {
	if config == nil {
		config = DefaultConfig()
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open failed: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	p, err := NewWithDB(ctx, db, config, keys, codec)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewWithDB는 열려 있는 *sql.DB로 프로바이더를 생성합니다. 테이블이 없으면 만듭니다.
func NewWithDB[K comparable, V any](ctx context.Context, db *sql.DB, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[V]) (*Provider[K, V], error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TableName == "" {
		config.TableName = "agingcache"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name: %q", config.TableName)
	}
	if codec == nil {
		codec = serializer.JSON[V]()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := config.TableName
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			age BIGINT NOT NULL,
			value BYTEA NOT NULL
		)`, t)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return nil, fmt.Errorf("create table failed: %w", err)
	}

	return &Provider[K, V]{
		config: config,
		db:     db,
		keys:   keys,
		codec:  codec,
		logger: logger.With("component", "postgres-provider", "table", t),
		getSQL: fmt.Sprintf("SELECT age, value FROM %s WHERE key = $1", t),
		upsertSQL: fmt.Sprintf(`
			INSERT INTO %s (key, age, value) VALUES ($1, $2, $3)
			ON CONFLICT(key) DO UPDATE SET age = EXCLUDED.age, value = EXCLUDED.value`, t),
		deleteSQL: fmt.Sprintf("DELETE FROM %s WHERE key = $1", t),
		keysSQL:   fmt.Sprintf("SELECT key FROM %s", t),
		countSQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s", t),
	}, nil
}

// DB는 내부 *sql.DB를 반환합니다.
func (p *Provider[K, V]) DB() *sql.DB {
	return p.db
}

// Close는 연결 풀을 닫습니다.
func (p *Provider[K, V]) Close() error {
	return p.db.Close()
}

// =============================================================================
// StorageProvider 구현
// =============================================================================

func (p *Provider[K, V]) IsPersistable() bool {
	return p.config.Persistable
}

func (p *Provider[K, V]) Get(ctx context.Context, key K) (*core.AgedValue[V], error) {
	k, err := p.keys.EncodeKey(key)
	if err != nil {
		return nil, err
	}

	var age int64
	var data []byte
	err = p.db.QueryRowContext(ctx, p.getSQL, k).Scan(&age, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres query error: %w", err)
	}

	value, err := p.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("postgres decode error: %w", err)
	}
	aged := core.NewAgedValue(age, value)
	return &aged, nil
}

func (p *Provider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	k, err := p.keys.EncodeKey(key)
	if err != nil {
		return false, err
	}
	data, err := p.codec.Encode(value.Value)
	if err != nil {
		return false, fmt.Errorf("postgres encode error: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, p.upsertSQL, k, value.Age, data); err != nil {
		return false, fmt.Errorf("postgres upsert error: %w", err)
	}
	return true, nil
}

// Delete는 키를 삭제합니다. 없는 키여도 true입니다.
func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	k, err := p.keys.EncodeKey(key)
	if err != nil {
		return false, err
	}
	if _, err := p.db.ExecContext(ctx, p.deleteSQL, k); err != nil {
		return false, fmt.Errorf("postgres delete error: %w", err)
	}
	return true, nil
}

func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	rows, err := p.db.QueryContext(ctx, p.keysSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres query error: %w", err)
	}
	defer rows.Close()

	var keys []K
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("postgres scan error: %w", err)
		}
		key, err := p.keys.DecodeKey(s)
		if err != nil {
			p.logger.Warn("skipping undecodable key", "key", s, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows error: %w", err)
	}
	return keys, nil
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, p.countSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres count error: %w", err)
	}
	return count, nil
}

var _ core.StorageProvider[string, string] = (*Provider[string, string])(nil)
