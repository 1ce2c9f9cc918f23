package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/adapters/memory"
	"github.com/bridgify/agingcache/core"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCollectorStats(t *testing.T) {
	c := New()

	c.OnGet("a", 0, true, 500*time.Microsecond)
	c.OnGet("b", 1, true, 3*time.Millisecond)
	c.OnGet("c", -1, false, 200*time.Millisecond)
	c.OnSet("a", core.Success, time.Millisecond)
	c.OnSet("b", core.PartialWrite, time.Millisecond)
	c.OnDelete("a", core.Success, time.Millisecond)
	c.OnEviction("a", core.Success)
	c.OnEviction("b", core.UnspecifiedError)
	c.OnEviction("c", core.Refreshed)
	c.OnPurge(1, time.Millisecond, nil)
	c.OnPropagation(1, "a", false, core.Success)

	s := c.Stats()
	assert.Equal(t, uint64(3), s.TotalGets)
	assert.Equal(t, uint64(2), s.TotalHits)
	assert.Equal(t, uint64(1), s.TotalMisses)
	assert.InDelta(t, 2.0/3.0, s.HitRate, 0.0001)
	assert.Equal(t, uint64(2), s.TotalSets)
	assert.Equal(t, uint64(1), s.FailedWrites)
	assert.Equal(t, uint64(1), s.TotalEvictions)
	assert.Equal(t, uint64(1), s.TotalPurges)
	assert.Equal(t, uint64(1), s.Propagations)
	assert.Equal(t, map[int]uint64{0: 1, 1: 1}, s.LevelHits)

	require.Len(t, s.GetLatencyDistribution, 6)
	assert.InDelta(t, 100.0/3.0, s.GetLatencyDistribution[0], 0.0001)
	assert.InDelta(t, 100.0/3.0, s.GetLatencyDistribution[5], 0.0001)

	c.Reset()
	assert.Zero(t, c.Stats().TotalGets)
	assert.Empty(t, c.Stats().LevelHits)
}

func TestCollectorSkipsDeferredEviction(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(0)
	clock := func() time.Time { return now }

	bottom := memory.New[string, string](nil)
	top := memory.New[string, string](nil)
	h, err := core.NewHierarchy([]core.StorageProvider[string, string]{bottom, top}, &core.HierarchyOptions{Logger: discardLogger})
	require.NoError(t, err)
	defer h.Close()

	c := New()
	cache, err := core.NewAgingCache(h,
		core.WithLogger(discardLogger),
		core.WithObserver(c),
		core.WithClock(clock),
	)
	require.NoError(t, err)
	defer cache.Close()

	require.Equal(t, core.Success, cache.Set(ctx, "k", "old"))

	// 다른 노드가 최상위에 더 새로운 값을 쓴 상황입니다.
	_, err = top.Set(ctx, "k", core.NewAgedValue(int64(time.Minute/time.Millisecond), "new"))
	require.NoError(t, err)

	now = now.Add(core.DefaultAgeLimit + time.Minute)
	require.NoError(t, cache.Purge(ctx))

	v, _ := top.Get(ctx, "k")
	require.NotNil(t, v, "더 새로운 값은 퇴거되지 않아야 합니다")
	assert.Zero(t, c.Stats().TotalEvictions)
}

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(&PrometheusConfig{Namespace: "test", Registerer: reg})
	require.NoError(t, err)

	o.OnGet("a", 0, true, time.Millisecond)
	o.OnGet("a", -1, false, time.Millisecond)
	o.OnSet("a", core.Success, time.Millisecond)
	o.OnPurge(3, time.Second, nil)
	o.OnPurge(0, time.Second, errors.New("boom"))
	o.OnPropagation(1, "a", true, core.Success)

	families, err := reg.Gather()
	require.NoError(t, err)

	gets := findFamily(t, families, "test_get_requests_total")
	assert.Len(t, gets.GetMetric(), 2)

	evicted := findFamily(t, families, "test_purged_entries_total")
	assert.Equal(t, 3.0, evicted.GetMetric()[0].GetCounter().GetValue())

	purges := findFamily(t, families, "test_purges_total")
	assert.Len(t, purges.GetMetric(), 2)

	props := findFamily(t, families, "test_propagations_total")
	require.Len(t, props.GetMetric(), 1)
	assert.Equal(t, "delete", labelValue(props.GetMetric()[0], "kind"))

	_, err = NewPrometheusObserver(&PrometheusConfig{Namespace: "test", Registerer: reg})
	assert.Error(t, err, "같은 지표를 두 번 등록하면 실패해야 합니다")
}

type staticStats []core.LevelStats

func (s staticStats) Stats() []core.LevelStats { return s }

func TestLevelCollector(t *testing.T) {
	source := staticStats{
		{Level: 0, Hits: 10, Misses: 2, Sets: 5, GetLatencyNs: int64(time.Millisecond)},
		{Level: 1, Persistable: true, Hits: 2, Errors: 1},
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewLevelCollector("test", source)))

	families, err := reg.Gather()
	require.NoError(t, err)

	hits := findFamily(t, families, "test_level_hits_total")
	require.Len(t, hits.GetMetric(), 2)
	for _, m := range hits.GetMetric() {
		switch labelValue(m, "level") {
		case "0":
			assert.Equal(t, 10.0, m.GetCounter().GetValue())
			assert.Equal(t, "false", labelValue(m, "persistable"))
		case "1":
			assert.Equal(t, 2.0, m.GetCounter().GetValue())
			assert.Equal(t, "true", labelValue(m, "persistable"))
		}
	}

	latency := findFamily(t, families, "test_level_get_latency_seconds")
	assert.InDelta(t, 0.001, latency.GetMetric()[0].GetGauge().GetValue(), 1e-9)
}
