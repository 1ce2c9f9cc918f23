package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bridgify/agingcache/core"
	"github.com/bridgify/agingcache/serializer"
)

// =============================================================================
// PubSubProvider: 변경을 발행하고 구독하는 Redis 프로바이더
// =============================================================================
// 받아들여진 Set마다 {key, age, value, origin}을, 실제로 지워진 Delete마다
// {key, origin}을 채널에 발행합니다. Listen을 호출하면 같은 채널을 구독해
// 다른 노드의 변경을 등록된 UpdateHandler에 전달합니다.
// =============================================================================

// DefaultChannelSuffix는 채널 이름 기본 접미사입니다. 채널은 KeyPrefix + 접미사입니다.
const DefaultChannelSuffix = "PublishedKey"

// PubSubConfig는 PubSubProvider 설정입니다.
type PubSubConfig struct {
	// Channel은 발행/구독 채널입니다. 비어 있으면 KeyPrefix + "PublishedKey"입니다.
	Channel string

	// SkipOwnMessages가 true면 자신이 발행한 메시지는 핸들러에 전달하지 않습니다.
	SkipOwnMessages bool
}

// message는 채널에 발행되는 메시지입니다. Value가 비어 있으면 삭제입니다.
type message struct {
	Key    string `json:"key"`
	Age    int64  `json:"age,omitempty"`
	Value  []byte `json:"value,omitempty"`
	Origin string `json:"origin"`
}

// PubSubProvider는 구독 가능한 Redis 프로바이더입니다.
type PubSubProvider[K comparable, V any] struct {
	*Provider[K, V]

	channel  string
	origin   string
	skipOwn  bool
	messages serializer.Codec[message]

	handlers []core.UpdateHandler[K, V]
	pubsub   *redis.PubSub
	done     chan struct{}

	mu sync.RWMutex
}

// NewPubSub은 Provider 위에 발행/구독 기능을 더합니다.
func NewPubSub[K comparable, V any](provider *Provider[K, V], config *PubSubConfig) *PubSubProvider[K, V] {
	if config == nil {
		config = &PubSubConfig{}
	}
	channel := config.Channel
	if channel == "" {
		channel = provider.config.KeyPrefix + DefaultChannelSuffix
	}

	origin := uuid.NewString()
	p := &PubSubProvider[K, V]{
		Provider: provider,
		channel:  channel,
		origin:   origin,
		skipOwn:  config.SkipOwnMessages,
		messages: serializer.JSON[message](),
	}
	p.logger = provider.logger.With("channel", channel, "origin", origin)
	return p
}

// Channel은 발행/구독 채널 이름을 반환합니다.
func (p *PubSubProvider[K, V]) Channel() string {
	return p.channel
}

// Origin은 이 인스턴스의 발행자 ID를 반환합니다.
func (p *PubSubProvider[K, V]) Origin() string {
	return p.origin
}

// =============================================================================
// 쓰기 + 발행
// =============================================================================

// Set은 값을 저장하고, 받아들여졌으면 변경을 발행합니다.
// 발행 실패는 경고만 남기며 쓰기 결과를 바꾸지 않습니다.
func (p *PubSubProvider[K, V]) Set(ctx context.Context, key K, value core.AgedValue[V]) (bool, error) {
	encodedKey, err := p.encodeKey(key)
	if err != nil {
		return false, err
	}

	ok, err := p.Provider.Set(ctx, key, value)
	if err != nil || !ok {
		return ok, err
	}

	data, err := p.codec.Encode(value)
	if err != nil {
		p.logger.Warn("failed to encode published value", "key", encodedKey, "error", err)
		return true, nil
	}

	p.publish(ctx, message{Key: encodedKey, Age: value.Age, Value: data, Origin: p.origin})
	return true, nil
}

// Delete는 키를 삭제하고, 실제로 지워졌으면 변경을 발행합니다.
func (p *PubSubProvider[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	encodedKey, err := p.encodeKey(key)
	if err != nil {
		return false, err
	}

	n, err := p.del(ctx, key)
	if err != nil {
		return false, err
	}

	if n > 0 {
		p.publish(ctx, message{Key: encodedKey, Origin: p.origin})
	}
	return true, nil
}

// encodeKey는 발행할 키를 인코딩합니다. 실패하면 쓰기 전에 중단합니다.
func (p *PubSubProvider[K, V]) encodeKey(key K) (string, error) {
	encodedKey, err := p.keys.EncodeKey(key)
	if err != nil {
		p.logger.Warn("failed to encode published key", "key", key, "error", err)
		return "", fmt.Errorf("redis key encode error: %w", err)
	}
	return encodedKey, nil
}

func (p *PubSubProvider[K, V]) publish(ctx context.Context, msg message) {
	payload, err := p.messages.Encode(msg)
	if err != nil {
		p.logger.Warn("failed to encode message", "key", msg.Key, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("failed to publish", "key", msg.Key, "error", err)
	}
}

// =============================================================================
// 구독
// =============================================================================

// Subscribe는 핸들러를 등록합니다. 이미 등록된 핸들러면 false입니다.
func (p *PubSubProvider[K, V]) Subscribe(handler core.UpdateHandler[K, V]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.handlers {
		if h == handler {
			p.logger.Warn("handler already subscribed")
			return false
		}
	}
	p.handlers = append(p.handlers, handler)
	return true
}

// Unsubscribe는 핸들러를 해제합니다. 등록되지 않은 핸들러면 false입니다.
func (p *PubSubProvider[K, V]) Unsubscribe(handler core.UpdateHandler[K, V]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, h := range p.handlers {
		if h == handler {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return true
		}
	}
	p.logger.Warn("handler was not subscribed")
	return false
}

// Listen은 채널 구독을 시작합니다. 이미 듣고 있으면 (false, nil)입니다.
// 메시지는 별도 고루틴에서 Close될 때까지 처리됩니다.
func (p *PubSubProvider[K, V]) Listen(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pubsub != nil {
		return false, nil
	}

	pubsub := p.client.Subscribe(ctx, p.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return false, fmt.Errorf("redis subscribe error: %w", err)
	}

	p.pubsub = pubsub
	p.done = make(chan struct{})
	go p.receiveLoop(pubsub.Channel(), p.done)

	p.logger.Info("listening for published keys")
	return true, nil
}

func (p *PubSubProvider[K, V]) receiveLoop(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	for msg := range ch {
		p.handleMessage(ctx, msg)
	}
}

// handleMessage는 받은 메시지 하나를 핸들러들에게 전달합니다.
func (p *PubSubProvider[K, V]) handleMessage(ctx context.Context, msg *redis.Message) {
	if msg.Channel != p.channel {
		p.logger.Warn("message from unexpected channel", "from", msg.Channel)
		return
	}

	decoded, err := p.messages.Decode([]byte(msg.Payload))
	if err != nil {
		p.logger.Warn("failed to decode message", "error", err)
		return
	}
	if p.skipOwn && decoded.Origin == p.origin {
		return
	}

	key, err := p.keys.DecodeKey(decoded.Key)
	if err != nil {
		p.logger.Warn("failed to decode published key", "key", decoded.Key, "error", err)
		return
	}

	var value *core.AgedValue[V]
	if len(decoded.Value) > 0 {
		v, err := p.codec.Decode(decoded.Value)
		if err != nil {
			p.logger.Warn("failed to decode published value", "key", decoded.Key, "error", err)
			return
		}
		value = &v
	}

	p.logger.Debug("received published key", "key", decoded.Key, "deleted", value == nil)

	p.mu.RLock()
	handlers := make([]core.UpdateHandler[K, V], len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		h.OnUpdate(ctx, key, value)
	}
}

// Close는 구독을 멈추고 수신 고루틴이 끝날 때까지 기다린 뒤 클라이언트를 닫습니다.
func (p *PubSubProvider[K, V]) Close() error {
	p.mu.Lock()
	pubsub, done := p.pubsub, p.done
	p.pubsub, p.done = nil, nil
	p.mu.Unlock()

	if pubsub != nil {
		if err := pubsub.Close(); err != nil {
			p.logger.Warn("failed to close subscription", "error", err)
		}
		<-done
		p.logger.Info("stopped listening")
	}
	return p.Provider.Close()
}

var _ core.SubscribableProvider[string, string] = (*PubSubProvider[string, string])(nil)
