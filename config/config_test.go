package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/core"
)

const sampleYAML = `
log_level: debug
cache:
  max_entries: 500
  age_limit: 30m
  purge_interval: 15s
  set_mode: refresh-always
  evict_at_level: 1
redis:
  addr: localhost:6379
  pubsub: true
codec:
  serializer: msgpack
  compression: s2
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agingcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultProducesValidOptions(t *testing.T) {
	opts, err := Default().CoreOptions()
	require.NoError(t, err)
	assert.NoError(t, opts.Validate(2))
	assert.Nil(t, opts.EvictAtLevel)
	assert.Equal(t, core.OverwriteAged, opts.SetMode)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, 30*time.Minute, cfg.Cache.AgeLimit)
	assert.Equal(t, 15*time.Second, cfg.Cache.PurgeInterval)
	assert.True(t, cfg.Redis.PubSub)
	assert.Equal(t, "agingcache:", cfg.Redis.KeyPrefix, "파일에 없는 값은 기본값을 유지합니다")
	assert.Equal(t, "msgpack", cfg.Codec.Serializer)

	opts, err := cfg.CoreOptions()
	require.NoError(t, err)
	assert.Equal(t, core.RefreshAlways, opts.SetMode)
	assert.Equal(t, core.OverwriteAged, opts.DeleteMode)
	require.NotNil(t, opts.EvictAtLevel)
	assert.Equal(t, 1, *opts.EvictAtLevel)
	assert.NoError(t, opts.Validate(3))
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("AGINGCACHE_CACHE_MAX_ENTRIES", "42")
	t.Setenv("AGINGCACHE_CACHE_DELETE_MODE", "overwrite-always")
	t.Setenv("AGINGCACHE_REDIS_ADDR", "redis:6380")
	t.Setenv("AGINGCACHE_SQLITE_PATH", "/tmp/cache.db")

	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Cache.MaxEntries)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "/tmp/cache.db", cfg.SQLite.Path)
	assert.Equal(t, 30*time.Minute, cfg.Cache.AgeLimit)

	opts, err := cfg.CoreOptions()
	require.NoError(t, err)
	assert.Equal(t, core.OverwriteAlways, opts.DeleteMode)
}

func TestCoreOptionsRejectsUnknownPolicy(t *testing.T) {
	cfg := Default()
	cfg.Cache.SetMode = "lru"
	_, err := cfg.CoreOptions()
	assert.True(t, errors.Is(err, core.ErrUnsupportedPolicy))

	cfg = Default()
	cfg.Cache.UpdatePolicy = "never"
	_, err = cfg.HierarchyOptions()
	assert.True(t, errors.Is(err, core.ErrUnsupportedPolicy))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "cache: [not, a, map"))
	assert.Error(t, err)

	t.Setenv("AGINGCACHE_CACHE_AGE_LIMIT", "forever")
	_, err = Load("")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, "WARN", level.String())

	_, err = ParseLogLevel("loud")
	assert.ErrorIs(t, err, core.ErrInvalidOptions)
}
