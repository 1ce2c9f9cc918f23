// Package sqlite는 SQLite 저장소 프로바이더를 구현합니다.
// 로컬 디스크에 영속적으로 저장되는 계층으로, 프로세스 재시작 후에도 데이터가 유지됩니다.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

// =============================================================================
// Provider: SQLite 저장소 프로바이더
// =============================================================================
// 두 드라이버를 지원합니다.
//   - "sqlite3": mattn/go-sqlite3 (cgo, 기본값)
//   - "sqlite": modernc.org/sqlite (순수 Go)
// =============================================================================

const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"

	// MemoryPath는 인메모리 데이터베이스 경로입니다.
	MemoryPath = ":memory:"
)

// Config는 SQLite 프로바이더 설정입니다.
type Config struct {
	// Driver는 database/sql 드라이버 이름입니다. (DriverCGO 또는 DriverPureGo)
	Driver string

	// Path는 데이터베이스 파일 경로입니다.
	// ":memory:"를 사용하면 인메모리 데이터베이스가 됩니다.
	// 인메모리 DB는 연결마다 따로 생기므로 MaxOpenConns를 1로 두어야 합니다.
	Path string

	// MaxOpenConns는 최대 열린 연결 수입니다.
	MaxOpenConns int

	// MaxIdleConns는 최대 유휴 연결 수입니다.
	MaxIdleConns int

	// ConnMaxLifetime은 연결의 최대 수명입니다.
	ConnMaxLifetime time.Duration

	// CacheSize는 SQLite 페이지 캐시 크기입니다. (페이지 단위)
	// 음수면 KB 단위로 해석됩니다. (예: -64000 = 64MB)
	CacheSize int

	// Persistable은 이 계층을 영속 계층으로 보고할지 여부입니다.
	// 파일 DB면 기본 true, 인메모리 DB면 무시되고 false입니다.
	Persistable bool

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger
}

// DefaultConfig는 기본 설정을 반환합니다.
func DefaultConfig() *Config {
	return &Config{
		Driver:          DriverCGO,
		Path:            "agingcache.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		CacheSize:       -64000, // 64MB
		Persistable:     true,
	}
}

// Provider는 SQLite 저장소 프로바이더입니다.
type Provider[K comparable, V any] struct {
	config *Config
	db     *sql.DB
	keys   serializer.KeyCodec[K]
	codec  serializer.Codec[V]
	logger *slog.Logger
}

// =============================================================================
// Provider 생성자
// =============================================================================

// New는 데이터베이스를 열고 테이블을 만든 뒤 프로바이더를 반환합니다.
//
// Parameters:
//   - ctx: 연결 확인과 테이블 생성에 쓰이는 컨텍스트
//   - config: 프로바이더 설정 (nil이면 기본값)
//   - keys: 키 변환 코덱
//   - codec: 값 코덱 (nil이면 JSON)
//
// Returns:
//   - *Provider: 생성된 프로바이더
//   - error: 열기, PRAGMA, 테이블 생성 실패 시 에러
func New[K comparable, V any](ctx context.Context, config *Config, keys serializer.KeyCodec[K], codec serializer.Codec[V]) (*Provider[K, V], error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Path == "" {
		config.Path = MemoryPath
	}
	if codec == nil {
		codec = serializer.JSON[V]()
	}

	memory := config.Path == MemoryPath
	dsn := config.Path
	if !memory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("create directory failed: %w", err)
		}
		dsn = config.Path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %w", err)
	}
	if memory {
		// 연결이 닫히면 메모리 DB도 사라지므로 연결 하나를 계속 유지합니다.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}

	pragmas := []string{"PRAGMA temp_store = MEMORY"}
	if config.CacheSize != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", config.CacheSize))
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma failed: %w", err)
		}
	}

	createSQL := `
		CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			age INTEGER NOT NULL,
			value BLOB NOT NULL
		)`
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table failed: %w", err)
	}

	if memory {
		config.Persistable = false
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider[K, V]{
		config: config,
		db:     db,
		keys:   keys,
		codec:  codec,
		logger: logger.With("component", "sqlite-provider", "driver", config.Driver, "path", config.Path),
	}, nil
}

// DB는 내부 *sql.DB를 반환합니다.
func (p *Provider[K, V]) DB() *sql.DB {
	return p.db
}

// Vacuum은 데이터베이스 파일을 정리합니다.
func (p *Provider[K, V]) Vacuum(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("sqlite vacuum error: %w", err)
	}
	return nil
}

// Close는 데이터베이스를 닫습니다.
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
	err = p.db.QueryRowContext(ctx, "SELECT age, value FROM cache WHERE key = ?", k).Scan(&age, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query error: %w", err)
	}

	value, err := p.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("sqlite decode error: %w", err)
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
		return false, fmt.Errorf("sqlite encode error: %w", err)
	}

	query := `
		INSERT INTO cache (key, age, value) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET age = excluded.age, value = excluded.value`
	if _, err := p.db.ExecContext(ctx, query, k, value.Age, data); err != nil {
		return false, fmt.Errorf("sqlite insert error: %w", err)
	}
	return true, nil
}

// Delete는 키를 삭제합니다. 없는 키여도 true입니다.
func (p *Provider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	k, err := p.keys.EncodeKey(key)
	if err != nil {
		return false, err
	}
	if _, err := p.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", k); err != nil {
		return false, fmt.Errorf("sqlite delete error: %w", err)
	}
	return true, nil
}

func (p *Provider[K, V]) Keys(ctx context.Context) ([]K, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT key FROM cache")
	if err != nil {
		return nil, fmt.Errorf("sqlite query error: %w", err)
	}
	defer rows.Close()

	var keys []K
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan error: %w", err)
		}
		key, err := p.keys.DecodeKey(s)
		if err != nil {
			p.logger.Warn("skipping undecodable key", "key", s, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows error: %w", err)
	}
	return keys, nil
}

func (p *Provider[K, V]) Size(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite count error: %w", err)
	}
	return count, nil
}

var _ core.StorageProvider[string, string] = (*Provider[string, string])(nil)
