// Package plugin은 캐시 이벤트 플러그인 시스템을 구현합니다.
// 플러그인은 이름이 있는 core.Observer이며, Manager로 여러 개를 묶어
// core.WithObserver에 한 번에 연결합니다.
package plugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bridgify/agingcache/core"
)

// =============================================================================
// Plugin Interface
// =============================================================================

type Plugin interface {
	core.Observer
	Name() string
}

// =============================================================================
// BasePlugin
// =============================================================================

// BasePlugin은 모든 훅이 비어 있는 플러그인입니다. 임베딩해서 필요한 훅만 구현합니다.
type BasePlugin struct {
	core.NopObserver
	name string
}

func NewBase(name string) *BasePlugin {
	return &BasePlugin{name: name}
}

func (p *BasePlugin) Name() string { return p.name }

// =============================================================================
// Manager: 플러그인 묶음
// =============================================================================

// Manager는 등록된 플러그인들에 이벤트를 등록 순서대로 전달합니다.
// 캐시가 동작하는 중에도 등록과 해제가 가능합니다. plugins 슬라이스는 바꿀 때마다 새로 만듭니다.
type Manager struct {
	plugins []Plugin
	mu      sync.RWMutex
}

func NewManager(plugins ...Plugin) *Manager {
	m := &Manager{}
	for _, p := range plugins {
		m.Register(p)
	}
	return m
}

// Register는 플러그인을 추가합니다. 같은 이름이 있으면 교체합니다.
func (m *Manager) Register(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plugins := make([]Plugin, 0, len(m.plugins)+1)
	replaced := false
	for _, existing := range m.plugins {
		if existing.Name() == p.Name() {
			existing, replaced = p, true
		}
		plugins = append(plugins, existing)
	}
	if !replaced {
		plugins = append(plugins, p)
	}
	m.plugins = plugins
}

// Unregister는 이름으로 플러그인을 제거합니다. 없으면 false입니다.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	plugins := make([]Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		if p.Name() != name {
			plugins = append(plugins, p)
		}
	}
	if len(plugins) == len(m.plugins) {
		return false
	}
	m.plugins = plugins
	return true
}

// Names는 등록된 플러그인 이름을 순서대로 반환합니다.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.plugins))
	for i, p := range m.plugins {
		names[i] = p.Name()
	}
	return names
}

func (m *Manager) each(fn func(p Plugin)) {
	m.mu.RLock()
	plugins := m.plugins
	m.mu.RUnlock()

	for _, p := range plugins {
		fn(p)
	}
}

func (m *Manager) OnGet(key any, level int, hit bool, latency time.Duration) {
	m.each(func(p Plugin) { p.OnGet(key, level, hit, latency) })
}

func (m *Manager) OnSet(key any, status core.WriteStatus, latency time.Duration) {
	m.each(func(p Plugin) { p.OnSet(key, status, latency) })
}

func (m *Manager) OnDelete(key any, status core.WriteStatus, latency time.Duration) {
	m.each(func(p Plugin) { p.OnDelete(key, status, latency) })
}

func (m *Manager) OnEviction(key any, status core.WriteStatus) {
	m.each(func(p Plugin) { p.OnEviction(key, status) })
}

func (m *Manager) OnPurge(evicted int, duration time.Duration, err error) {
	m.each(func(p Plugin) { p.OnPurge(evicted, duration, err) })
}

func (m *Manager) OnPropagation(level int, key any, deleted bool, status core.WriteStatus) {
	m.each(func(p Plugin) { p.OnPropagation(level, key, deleted, status) })
}

// =============================================================================
// Logging Plugin
// =============================================================================

// LoggingPlugin은 캐시 이벤트를 slog 레코드로 남깁니다.
// 조회/쓰기는 Debug, 퇴거와 퍼지는 Info, 실패한 쓰기와 퍼지 에러는 Warn입니다.
type LoggingPlugin struct {
	*BasePlugin
	logger *slog.Logger
}

type LoggingOption func(*LoggingPlugin)

func WithLogger(logger *slog.Logger) LoggingOption {
	return func(p *LoggingPlugin) {
		p.logger = logger
	}
}

func NewLogging(opts ...LoggingOption) *LoggingPlugin {
	p := &LoggingPlugin{
		BasePlugin: NewBase("logging"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "cache-events")
	return p
}

func (p *LoggingPlugin) OnGet(key any, level int, hit bool, latency time.Duration) {
	if hit {
		p.logger.Debug("get hit", "key", key, "storage_level", level, "latency", latency)
	} else {
		p.logger.Debug("get miss", "key", key, "latency", latency)
	}
}

func (p *LoggingPlugin) OnSet(key any, status core.WriteStatus, latency time.Duration) {
	p.logWrite("set", key, status, latency)
}

func (p *LoggingPlugin) OnDelete(key any, status core.WriteStatus, latency time.Duration) {
	p.logWrite("delete", key, status, latency)
}

func (p *LoggingPlugin) logWrite(op string, key any, status core.WriteStatus, latency time.Duration) {
	level := slog.LevelDebug
	if !status.IsSuccess() {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, op, "key", key, "status", status.String(), "latency", latency)
}

func (p *LoggingPlugin) OnEviction(key any, status core.WriteStatus) {
	switch status {
	case core.Success:
		p.logger.Info("evicted", "key", key)
		return
	case core.Refreshed:
		p.logger.Debug("eviction deferred to newer value", "key", key)
		return
	}
	p.logger.Warn("eviction failed", "key", key, "status", status.String())
}

func (p *LoggingPlugin) OnPurge(evicted int, duration time.Duration, err error) {
	if err != nil {
		p.logger.Warn("purge stopped", "evicted", evicted, "duration", duration, "error", err)
		return
	}
	if evicted > 0 {
		p.logger.Info("purged", "evicted", evicted, "duration", duration)
	}
}

func (p *LoggingPlugin) OnPropagation(level int, key any, deleted bool, status core.WriteStatus) {
	p.logger.Debug("propagated", "storage_level", level, "key", key, "deleted", deleted, "status", status.String())
}

// =============================================================================
// Callback Plugin
// =============================================================================

type CallbackPlugin struct {
	*BasePlugin
	onGet         func(key any, level int, hit bool)
	onSet         func(key any, status core.WriteStatus)
	onDelete      func(key any, status core.WriteStatus)
	onEviction    func(key any, status core.WriteStatus)
	onPurge       func(evicted int, err error)
	onPropagation func(level int, key any, deleted bool)
}

type CallbackOption func(*CallbackPlugin)

func OnGetCallback(fn func(key any, level int, hit bool)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onGet = fn
	}
}

func OnSetCallback(fn func(key any, status core.WriteStatus)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onSet = fn
	}
}

func OnDeleteCallback(fn func(key any, status core.WriteStatus)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onDelete = fn
	}
}

func OnEvictionCallback(fn func(key any, status core.WriteStatus)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onEviction = fn
	}
}

func OnPurgeCallback(fn func(evicted int, err error)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onPurge = fn
	}
}

func OnPropagationCallback(fn func(level int, key any, deleted bool)) CallbackOption {
	return func(p *CallbackPlugin) {
		p.onPropagation = fn
	}
}

func NewCallback(opts ...CallbackOption) *CallbackPlugin {
	p := &CallbackPlugin{
		BasePlugin: NewBase("callback"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CallbackPlugin) OnGet(key any, level int, hit bool, latency time.Duration) {
	if p.onGet != nil {
		p.onGet(key, level, hit)
	}
}

func (p *CallbackPlugin) OnSet(key any, status core.WriteStatus, latency time.Duration) {
	if p.onSet != nil {
		p.onSet(key, status)
	}
}

func (p *CallbackPlugin) OnDelete(key any, status core.WriteStatus, latency time.Duration) {
	if p.onDelete != nil {
		p.onDelete(key, status)
	}
}

func (p *CallbackPlugin) OnEviction(key any, status core.WriteStatus) {
	if p.onEviction != nil {
		p.onEviction(key, status)
	}
}

func (p *CallbackPlugin) OnPurge(evicted int, duration time.Duration, err error) {
	if p.onPurge != nil {
		p.onPurge(evicted, err)
	}
}

func (p *CallbackPlugin) OnPropagation(level int, key any, deleted bool, status core.WriteStatus) {
	if p.onPropagation != nil {
		p.onPropagation(level, key, deleted)
	}
}

var (
	_ core.Observer = (*Manager)(nil)
	_ Plugin        = (*LoggingPlugin)(nil)
	_ Plugin        = (*CallbackPlugin)(nil)
)
