package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/core"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestProviderCRUD(t *testing.T) {
	ctx := context.Background()
	p := New[string, int](nil)

	assert.False(t, p.IsPersistable())

	v, err := p.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	ok, err := p.Set(ctx, "a", core.NewAgedValue(10, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = p.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(10), v.Age)
	assert.Equal(t, 1, v.Value)

	ok, err = p.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok, "없는 키 삭제도 true여야 합니다")

	size, err := p.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestProviderKeysAcrossShards(t *testing.T) {
	ctx := context.Background()
	p := New[int, string](nil)

	for i := 0; i < 1000; i++ {
		_, err := p.Set(ctx, i, core.NewAgedValue(int64(i), fmt.Sprint(i)))
		require.NoError(t, err)
	}

	keys, err := p.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1000)

	p.Clear()
	size, _ := p.Size(ctx)
	assert.Zero(t, size)
}

func TestProviderMaxSizeRejects(t *testing.T) {
	ctx := context.Background()
	p := New[string, string](&Config{MaxSize: 1})

	ok, _ := p.Set(ctx, "a", core.NewAgedValue(1, "a"))
	assert.True(t, ok)

	ok, _ = p.Set(ctx, "b", core.NewAgedValue(1, "b"))
	assert.False(t, ok, "가득 찬 상태에서 새 키가 받아들여졌습니다")

	ok, _ = p.Set(ctx, "a", core.NewAgedValue(2, "a2"))
	assert.True(t, ok, "기존 키 갱신은 받아들여져야 합니다")
}

func TestProviderMaxSizeUnderConcurrentSets(t *testing.T) {
	ctx := context.Background()
	p := New[int, int](&Config{MaxSize: 10})

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := p.Set(ctx, i, core.NewAgedValue(int64(i), i)); ok {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	size, _ := p.Size(ctx)
	assert.Equal(t, 10, size, "동시 Set이 MaxSize를 넘었습니다")
	assert.Equal(t, int32(10), accepted.Load())

	_, _ = p.Delete(ctx, 0)
	_, _ = p.Delete(ctx, 1)
	keys, _ := p.Keys(ctx)
	size, _ = p.Size(ctx)
	assert.Equal(t, len(keys), size)
}

type recordingHandler struct {
	updates []string
}

func (h *recordingHandler) OnUpdate(ctx context.Context, key string, value *core.AgedValue[string]) {
	if value == nil {
		h.updates = append(h.updates, "del:"+key)
		return
	}
	h.updates = append(h.updates, "set:"+key+"="+value.Value)
}

func TestSharedStoreNotifiesOtherViews(t *testing.T) {
	ctx := context.Background()
	store := NewSharedStore[string, string](&SharedConfig{Persistable: true})
	a := store.Provider()
	b := store.Provider()

	ha := &recordingHandler{}
	hb := &recordingHandler{}
	require.True(t, a.Subscribe(ha))
	require.True(t, b.Subscribe(hb))
	assert.False(t, b.Subscribe(hb), "같은 핸들러가 두 번 등록되었습니다")

	_, err := a.Set(ctx, "k", core.NewAgedValue(1, "v"))
	require.NoError(t, err)
	_, err = a.Delete(ctx, "k")
	require.NoError(t, err)

	assert.Empty(t, ha.updates, "쓴 노드 자신에게 알림이 갔습니다")
	assert.Equal(t, []string{"set:k=v", "del:k"}, hb.updates)
	assert.True(t, b.IsPersistable())

	assert.True(t, b.Unsubscribe(hb))
	assert.False(t, b.Unsubscribe(hb))
}

func TestSharedStoreTwoNodeCaches(t *testing.T) {
	ctx := context.Background()
	store := NewSharedStore[string, string](&SharedConfig{Persistable: true})

	newNode := func(now int64) (*core.AgingCache[string, string], *Provider[string, string]) {
		local := New[string, string](nil)
		h, err := core.NewHierarchy([]core.StorageProvider[string, string]{local, store.Provider()},
			&core.HierarchyOptions{Logger: discardLogger})
		require.NoError(t, err)

		cache, err := core.NewAgingCache(h,
			core.WithLogger(discardLogger),
			core.WithClock(func() time.Time { return time.UnixMilli(now) }),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			cache.Close()
			h.Close()
		})
		return cache, local
	}

	nodeA, _ := newNode(2000)
	nodeB, localB := newNode(1000)

	require.Equal(t, core.Success, nodeB.Set(ctx, "k", "from-b"))
	require.Equal(t, core.Success, nodeA.Set(ctx, "k", "from-a"))

	v, err := localB.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "from-a", v.Value, "다른 노드의 새 값이 하위 계층에 전파되지 않았습니다")

	got, ok := nodeB.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "from-a", got)

	require.Equal(t, core.Success, nodeA.Delete(ctx, "k"))
	v, _ = localB.Get(ctx, "k")
	assert.Nil(t, v, "삭제가 전파되지 않았습니다")
}
