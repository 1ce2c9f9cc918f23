package agingcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/adapters/memory"
	"github.com/bridgify/agingcache/adapters/sqlite"
	"github.com/bridgify/agingcache/compression"
	"github.com/bridgify/agingcache/config"
	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/metrics"
	"github.com/bridgify/agingcache/serializer"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestBuildMemoryAndSQLite(t *testing.T) {
	ctx := context.Background()
	collector := metrics.New()

	cache, err := NewBuilder[string, string](serializer.StringKeys[string]()).
		WithLogger(discardLogger).
		WithObserver(collector).
		WithCompression(compression.NewS2(), 16).
		WithCircuitBreaker(nil).
		WithTracing().
		AddMemoryLevel(0).
		AddSQLiteLevel(&sqlite.Config{Driver: sqlite.DriverPureGo, Path: sqlite.MemoryPath}).
		WithOptions(WithMaxEntries(100)).
		Build(ctx)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, Success, cache.Set(ctx, "greeting", "hello, aging cache"))

	v, ok := cache.Get(ctx, "greeting")
	require.True(t, ok)
	assert.Equal(t, "hello, aging cache", v)

	top := cache.Hierarchy().GetValueAtTopLevel(ctx, "greeting")
	require.NotNil(t, top, "최상위 SQLite 계층까지 쓰여야 합니다")

	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, keys)

	assert.Equal(t, Success, cache.Delete(ctx, "greeting"))
	_, ok = cache.Get(ctx, "greeting")
	assert.False(t, ok)

	assert.Equal(t, uint64(2), collector.Stats().TotalGets)
	assert.Equal(t, uint64(1), collector.Stats().TotalSets)
}

func TestBuildRequiresTwoLevels(t *testing.T) {
	_, err := NewBuilder[string, int](serializer.StringKeys[string]()).
		WithLogger(discardLogger).
		AddMemoryLevel(0).
		Build(context.Background())
	assert.True(t, errors.Is(err, ErrTooFewLevels))
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	_, err := NewBuilder[string, int](serializer.StringKeys[string]()).
		WithLogger(discardLogger).
		AddMemoryLevel(0).
		AddMemoryLevel(0).
		WithOptions(WithMaxEntries(-1)).
		Build(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidOptions))
}

func TestSharedLevelAcrossCaches(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSharedStore[string, int](&memory.SharedConfig{Persistable: true})

	build := func() *Cache[string, int] {
		c, err := NewBuilder[string, int](serializer.StringKeys[string]()).
			WithLogger(discardLogger).
			AddMemoryLevel(0).
			AddSharedMemoryLevel(store).
			WithHierarchyOptions(&core.HierarchyOptions{UpdatePolicy: core.Always}).
			Build(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}
	a, b := build(), build()

	require.Equal(t, Success, a.Set(ctx, "n", 1))
	v, ok := b.Get(ctx, "n")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// Always 정책이므로 a의 갱신이 b의 메모리 계층까지 반영됩니다.
	require.Equal(t, Success, a.Set(ctx, "n", 2, Force()))
	local := b.Hierarchy().GetValueAtBottomLevel(ctx, "n")
	require.NotNil(t, local)
	assert.Equal(t, 2, local.Value)
}

func TestCloseIsIdempotent(t *testing.T) {
	cache, err := NewBuilder[string, int](serializer.StringKeys[string]()).
		WithLogger(discardLogger).
		AddMemoryLevel(0).
		AddMemoryLevel(0).
		Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())
	assert.ErrorIs(t, cache.Purge(context.Background()), ErrClosed)
}

func TestNewBuilderFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.Codec.Compression = "zstd"
	cfg.SQLite.Driver = sqlite.DriverPureGo
	cfg.SQLite.Path = sqlite.MemoryPath

	b, err := NewBuilderFromConfig[int, string](cfg, serializer.JSONKeys[int](), 0)
	require.NoError(t, err)

	cache, err := b.Build(ctx)
	require.NoError(t, err)
	defer cache.Close()

	require.Equal(t, 2, cache.Hierarchy().TotalLevels())
	assert.Equal(t, Success, cache.Set(ctx, 7, "seven"))

	v, ok := cache.Get(ctx, 7, Force())
	require.True(t, ok)
	assert.Equal(t, "seven", v)
}

func TestNewBuilderFromConfigWithoutBackingLevel(t *testing.T) {
	_, err := NewBuilderFromConfig[string, string](config.Default(), serializer.StringKeys[string](), 0)
	assert.ErrorIs(t, err, ErrTooFewLevels)
}
