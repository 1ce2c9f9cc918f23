package plugin

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/core"
)

func TestManagerFanOut(t *testing.T) {
	var gets, evictions []any
	first := NewCallback(OnGetCallback(func(key any, level int, hit bool) { gets = append(gets, key) }))
	second := NewCallback(OnEvictionCallback(func(key any, status core.WriteStatus) { evictions = append(evictions, key) }))
	second.name = "callback-2"

	m := NewManager(first, second)
	assert.Equal(t, []string{"callback", "callback-2"}, m.Names())

	m.OnGet("a", 0, true, time.Millisecond)
	m.OnEviction("b", core.Success)
	m.OnSet("c", core.Success, time.Millisecond)

	assert.Equal(t, []any{"a"}, gets)
	assert.Equal(t, []any{"b"}, evictions)

	require.True(t, m.Unregister("callback"))
	assert.False(t, m.Unregister("callback"))
	m.OnGet("d", 0, true, time.Millisecond)
	assert.Len(t, gets, 1)
}

func TestManagerRegisterReplacesByName(t *testing.T) {
	var hits int
	m := NewManager(NewCallback())
	m.Register(NewCallback(OnGetCallback(func(key any, level int, hit bool) { hits++ })))

	assert.Equal(t, []string{"callback"}, m.Names())
	m.OnGet("a", 0, true, 0)
	assert.Equal(t, 1, hits)
}

func TestLoggingPlugin(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	p := NewLogging(WithLogger(logger))

	p.OnGet("a", 0, true, time.Millisecond)
	assert.Empty(t, buf.String(), "Debug 레코드는 Info 레벨에서 보이지 않아야 합니다")

	p.OnSet("a", core.PartialWrite, time.Millisecond)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=partial-write")
	buf.Reset()

	p.OnEviction("a", core.Success)
	assert.Contains(t, buf.String(), "msg=evicted")
	buf.Reset()

	p.OnEviction("a", core.Refreshed)
	assert.NotContains(t, buf.String(), "msg=evicted", "남아 있는 키가 퇴거로 기록되었습니다")

	p.OnPurge(2, time.Second, errors.New("level down"))
	assert.Contains(t, buf.String(), "purge stopped")
	assert.Contains(t, buf.String(), "component=cache-events")
}

func TestPurgeCallback(t *testing.T) {
	var purged []int
	obs := NewManager(
		NewCallback(OnPurgeCallback(func(evicted int, err error) { purged = append(purged, evicted) })),
	)

	obs.OnPurge(3, time.Millisecond, nil)
	assert.Equal(t, []int{3}, purged)
}
