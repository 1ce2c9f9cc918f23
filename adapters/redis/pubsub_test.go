package redis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type update struct {
	key   string
	value *core.AgedValue[string]
}

type recordingHandler struct {
	mu      sync.Mutex
	updates []update
}

func (h *recordingHandler) OnUpdate(ctx context.Context, key string, value *core.AgedValue[string]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update{key: key, value: value})
}

func (h *recordingHandler) snapshot() []update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]update(nil), h.updates...)
}

// newOfflinePubSub은 연결하지 않는 클라이언트로 PubSubProvider를 만듭니다.
func newOfflinePubSub(t *testing.T, skipOwn bool) *PubSubProvider[string, string] {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	config := DefaultConfig()
	config.Logger = discardLogger
	base := NewWithClient[string, string](client, config, serializer.StringKeys[string](), nil)
	return NewPubSub(base, &PubSubConfig{SkipOwnMessages: skipOwn})
}

func encodeMessage(t *testing.T, p *PubSubProvider[string, string], key string, value *core.AgedValue[string], origin string) *redis.Message {
	t.Helper()
	msg := message{Key: key, Origin: origin}
	if value != nil {
		data, err := p.codec.Encode(*value)
		require.NoError(t, err)
		msg.Age = value.Age
		msg.Value = data
	}
	payload, err := p.messages.Encode(msg)
	require.NoError(t, err)
	return &redis.Message{Channel: p.Channel(), Payload: string(payload)}
}

func TestPubSubDefaultChannel(t *testing.T) {
	p := newOfflinePubSub(t, false)
	assert.Equal(t, "agingcache:PublishedKey", p.Channel())
	assert.NotEmpty(t, p.Origin())
}

func TestPubSubHandleMessage(t *testing.T) {
	ctx := context.Background()
	p := newOfflinePubSub(t, false)

	h := &recordingHandler{}
	require.True(t, p.Subscribe(h))
	assert.False(t, p.Subscribe(h), "중복 구독은 false여야 합니다")

	value := core.NewAgedValue(42, "hello")
	p.handleMessage(ctx, encodeMessage(t, p, "greeting", &value, "other-node"))
	p.handleMessage(ctx, encodeMessage(t, p, "greeting", nil, "other-node"))

	updates := h.snapshot()
	require.Len(t, updates, 2)
	assert.Equal(t, "greeting", updates[0].key)
	require.NotNil(t, updates[0].value)
	assert.Equal(t, int64(42), updates[0].value.Age)
	assert.Equal(t, "hello", updates[0].value.Value)
	assert.Nil(t, updates[1].value, "값이 없는 메시지는 삭제입니다")

	require.True(t, p.Unsubscribe(h))
	assert.False(t, p.Unsubscribe(h))
}

func TestPubSubIgnoresForeignAndMalformed(t *testing.T) {
	ctx := context.Background()
	p := newOfflinePubSub(t, false)
	h := &recordingHandler{}
	p.Subscribe(h)

	p.handleMessage(ctx, &redis.Message{Channel: "elsewhere", Payload: `{"key":"a","origin":"x"}`})
	p.handleMessage(ctx, &redis.Message{Channel: p.Channel(), Payload: "not json"})

	assert.Empty(t, h.snapshot())
}

func TestPubSubSkipsOwnMessages(t *testing.T) {
	ctx := context.Background()
	p := newOfflinePubSub(t, true)
	h := &recordingHandler{}
	p.Subscribe(h)

	value := core.NewAgedValue(1, "mine")
	p.handleMessage(ctx, encodeMessage(t, p, "k", &value, p.Origin()))
	assert.Empty(t, h.snapshot())

	p.handleMessage(ctx, encodeMessage(t, p, "k", &value, "someone-else"))
	assert.Len(t, h.snapshot(), 1)
}

// =============================================================================
// 통합 테스트 (AGINGCACHE_REDIS_ADDR가 있을 때만)
// =============================================================================

func redisAddr(t *testing.T) string {
	addr := os.Getenv("AGINGCACHE_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGINGCACHE_REDIS_ADDR not set")
	}
	return addr
}

func newLiveProvider(t *testing.T, prefix string) *Provider[string, string] {
	t.Helper()
	config := DefaultConfig()
	config.Addr = redisAddr(t)
	config.KeyPrefix = prefix
	config.Logger = discardLogger

	p := New[string, string](config, serializer.StringKeys[string](), nil)
	require.NoError(t, p.Ping(context.Background()))
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProviderIntegration(t *testing.T) {
	ctx := context.Background()
	p := newLiveProvider(t, "agingcache-test:"+time.Now().Format("150405.000")+":")

	v, err := p.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	ok, err := p.Set(ctx, "a", core.NewAgedValue(5, "alpha"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = p.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "alpha", v.Value)

	keys, err := p.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)

	ok, err = p.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPubSubIntegration(t *testing.T) {
	ctx := context.Background()
	prefix := "agingcache-pubsub:" + time.Now().Format("150405.000") + ":"

	publisher := NewPubSub(newLiveProvider(t, prefix), nil)
	listener := NewPubSub(newLiveProvider(t, prefix), nil)
	defer listener.Close()

	h := &recordingHandler{}
	listener.Subscribe(h)

	started, err := listener.Listen(ctx)
	require.NoError(t, err)
	require.True(t, started)

	started, err = listener.Listen(ctx)
	require.NoError(t, err)
	assert.False(t, started, "두 번째 Listen은 false여야 합니다")

	_, err = publisher.Set(ctx, "k", core.NewAgedValue(9, "v"))
	require.NoError(t, err)
	_, err = publisher.Delete(ctx, "k")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.snapshot()) == 2 }, 5*time.Second, 20*time.Millisecond)
	updates := h.snapshot()
	assert.Equal(t, "v", updates[0].value.Value)
	assert.Nil(t, updates[1].value)
}

var errBadKey = errors.New("bad key")

// rejectingKeys는 모든 키 인코딩을 거절합니다.
type rejectingKeys struct{}

func (rejectingKeys) EncodeKey(key string) (string, error) { return "", errBadKey }
func (rejectingKeys) DecodeKey(s string) (string, error)   { return s, nil }

func TestPubSubKeyEncodeFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { client.Close() })

	config := DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	p := NewPubSub(NewWithClient[string, string](client, config, rejectingKeys{}, nil), nil)

	ok, err := p.Set(ctx, "k", core.NewAgedValue(1, "v"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBadKey)
	assert.Contains(t, buf.String(), "failed to encode published key")
	buf.Reset()

	ok, err = p.Delete(ctx, "k")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errBadKey)
	assert.Contains(t, buf.String(), "failed to encode published key")
}
