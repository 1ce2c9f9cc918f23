// Package config는 YAML 파일과 환경 변수에서 캐시 설정을 읽습니다.
// 파일 값 위에 AGINGCACHE_ 접두사 환경 변수가 덮어씌워집니다.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/bridgify/agingcache/core"
)

// EnvPrefix는 모든 환경 변수의 접두사입니다.
const EnvPrefix = "AGINGCACHE_"

// Config는 전체 설정입니다.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Cache    CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
	Codec    CodecConfig    `yaml:"codec" envPrefix:"CODEC_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
	S3       S3Config       `yaml:"s3" envPrefix:"S3_"`
}

// CacheConfig는 core.Options에 대응하는 설정입니다. 정책은 문자열로 씁니다.
type CacheConfig struct {
	MaxEntries        int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	AgeLimit          time.Duration `yaml:"age_limit" env:"AGE_LIMIT"`
	PurgeInterval     time.Duration `yaml:"purge_interval" env:"PURGE_INTERVAL"`
	ReplacementPolicy string        `yaml:"replacement_policy" env:"REPLACEMENT_POLICY"`
	SetMode           string        `yaml:"set_mode" env:"SET_MODE"`
	DeleteMode        string        `yaml:"delete_mode" env:"DELETE_MODE"`
	UpdatePolicy      string        `yaml:"update_policy" env:"UPDATE_POLICY"`

	// EvictAtLevel이 음수면 퇴거는 모든 계층에서 지웁니다.
	EvictAtLevel int `yaml:"evict_at_level" env:"EVICT_AT_LEVEL"`
}

// CodecConfig는 값 직렬화 설정입니다.
type CodecConfig struct {
	Serializer  string `yaml:"serializer" env:"SERIALIZER"`
	Compression string `yaml:"compression" env:"COMPRESSION"`
	Threshold   int    `yaml:"threshold" env:"THRESHOLD"`
}

// RedisConfig는 Redis 계층 설정입니다. Addr이 비어 있으면 계층을 만들지 않습니다.
type RedisConfig struct {
	Addr        string `yaml:"addr" env:"ADDR"`
	Password    string `yaml:"password" env:"PASSWORD"`
	DB          int    `yaml:"db" env:"DB"`
	KeyPrefix   string `yaml:"key_prefix" env:"KEY_PREFIX"`
	PubSub      bool   `yaml:"pubsub" env:"PUBSUB"`
	Persistable bool   `yaml:"persistable" env:"PERSISTABLE"`
}

// PostgresConfig는 PostgreSQL 계층 설정입니다. DSN이 비어 있으면 계층을 만들지 않습니다.
type PostgresConfig struct {
	DSN       string `yaml:"dsn" env:"DSN"`
	TableName string `yaml:"table_name" env:"TABLE_NAME"`
}

// SQLiteConfig는 SQLite 계층 설정입니다. Path가 비어 있으면 계층을 만들지 않습니다.
type SQLiteConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

// S3Config는 S3 계층 설정입니다. Bucket이 비어 있으면 계층을 만들지 않습니다.
type S3Config struct {
	Bucket         string `yaml:"bucket" env:"BUCKET"`
	Prefix         string `yaml:"prefix" env:"PREFIX"`
	Region         string `yaml:"region" env:"REGION"`
	Endpoint       string `yaml:"endpoint" env:"ENDPOINT"`
	ForcePathStyle bool   `yaml:"force_path_style" env:"FORCE_PATH_STYLE"`
}

// Default는 기본 설정을 반환합니다.
func Default() *Config {
	defaults := core.DefaultOptions()
	return &Config{
		LogLevel: "info",
		Cache: CacheConfig{
			AgeLimit:          defaults.AgeLimit,
			PurgeInterval:     defaults.PurgeInterval,
			ReplacementPolicy: defaults.ReplacementPolicy.String(),
			SetMode:           defaults.SetMode.String(),
			DeleteMode:        defaults.DeleteMode.String(),
			UpdatePolicy:      core.OnlyIfKeyExist.String(),
			EvictAtLevel:      -1,
		},
		Codec: CodecConfig{
			Serializer:  "json",
			Compression: "none",
			Threshold:   1024,
		},
		Redis: RedisConfig{KeyPrefix: "agingcache:"},
		SQLite: SQLiteConfig{
			Driver: "sqlite3",
		},
		S3: S3Config{
			Prefix: "agingcache/",
			Region: "us-east-1",
		},
	}
}

// =============================================================================
// 로딩
// =============================================================================

// Load는 기본값 위에 YAML 파일(path가 비어 있지 않으면)과 환경 변수를 차례로 적용합니다.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile은 YAML 파일을 읽어 설정에 덮어씁니다.
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv는 설정된 환경 변수만 덮어씁니다.
func (c *Config) LoadFromEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// =============================================================================
// core 옵션 변환
// =============================================================================

// CoreOptions는 캐시 설정을 core.Options로 변환합니다.
// 문자열 정책이 잘못되었으면 core.ErrUnsupportedPolicy를 감싼 에러를 반환합니다.
func (c *Config) CoreOptions() (*core.Options, error) {
	policy, err := core.ParseReplacementPolicy(c.Cache.ReplacementPolicy)
	if err != nil {
		return nil, err
	}
	setMode, err := core.ParseWriteMode(c.Cache.SetMode)
	if err != nil {
		return nil, fmt.Errorf("set_mode: %w", err)
	}
	deleteMode, err := core.ParseWriteMode(c.Cache.DeleteMode)
	if err != nil {
		return nil, fmt.Errorf("delete_mode: %w", err)
	}

	opts := core.DefaultOptions()
	opts.MaxEntries = c.Cache.MaxEntries
	opts.AgeLimit = c.Cache.AgeLimit
	opts.PurgeInterval = c.Cache.PurgeInterval
	opts.ReplacementPolicy = policy
	opts.SetMode = setMode
	opts.DeleteMode = deleteMode
	if c.Cache.EvictAtLevel >= 0 {
		level := c.Cache.EvictAtLevel
		opts.EvictAtLevel = &level
	}
	opts.Logger = c.Logger()
	return opts, nil
}

// HierarchyOptions는 계층 구조 설정을 반환합니다.
func (c *Config) HierarchyOptions() (*core.HierarchyOptions, error) {
	policy, err := core.ParseUpdatePolicy(c.Cache.UpdatePolicy)
	if err != nil {
		return nil, fmt.Errorf("update_policy: %w", err)
	}
	opts := core.DefaultHierarchyOptions()
	opts.UpdatePolicy = policy
	opts.Logger = c.Logger()
	return opts, nil
}

// Logger는 LogLevel에 맞춘 텍스트 로거를 stderr에 만듭니다.
func (c *Config) Logger() *slog.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ParseLogLevel은 debug/info/warn/error를 slog.Level로 변환합니다.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, errors.Join(core.ErrInvalidOptions, err)
	}
	return level, nil
}
