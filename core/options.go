// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 캐시 설정 옵션을 정의합니다.
package core

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultAgeLimit은 FIFO 정책의 기본 최대 나이입니다.
	DefaultAgeLimit = 200 * time.Minute

	// DefaultPurgeInterval은 기본 퍼지 주기입니다.
	DefaultPurgeInterval = 60 * time.Second

	// MinPurgeInterval은 허용되는 최소 퍼지 주기입니다.
	MinPurgeInterval = 10 * time.Second
)

// =============================================================================
// ReplacementPolicy: 퇴거 순서 정책
// =============================================================================

// ReplacementPolicy는 어떤 항목을 먼저 교체할지 결정합니다.
type ReplacementPolicy int

const (
	// FIFO는 먼저 들어온 항목부터 교체합니다. 유일한 내장 정책입니다.
	FIFO ReplacementPolicy = iota
)

// String은 ReplacementPolicy의 문자열 표현을 반환합니다.
func (p ReplacementPolicy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	default:
		return "unknown"
	}
}

// ParseReplacementPolicy는 문자열을 ReplacementPolicy로 변환합니다.
func ParseReplacementPolicy(s string) (ReplacementPolicy, error) {
	switch s {
	case "fifo", "FIFO", "":
		return FIFO, nil
	default:
		return 0, fmt.Errorf("%w: replacement policy %q", ErrUnsupportedPolicy, s)
	}
}

// =============================================================================
// WriteMode: 쓰기 충돌 해결 모드
// =============================================================================
// 분산 환경에서는 여러 인스턴스가 동시에 쓸 수 있습니다.
// WriteMode는 상위 계층에 이미 값이 있을 때의 동작을 결정합니다.
// =============================================================================

// WriteMode는 set/delete 충돌 해결 모드입니다.
type WriteMode int

const (
	// RefreshAlways는 상위 계층에 키가 있으면 하위 계층을 갱신하고,
	// force일 때만 덮어씁니다.
	RefreshAlways WriteMode = iota

	// OverwriteAged는 내 값이 더 새로우면 상위 계층을 덮어쓰고,
	// 더 오래되었으면 하위 계층을 갱신합니다. 기본값입니다.
	OverwriteAged

	// OverwriteAlways는 상위 계층 값을 무조건 덮어씁니다.
	OverwriteAlways
)

// String은 WriteMode의 문자열 표현을 반환합니다.
func (m WriteMode) String() string {
	switch m {
	case RefreshAlways:
		return "refresh-always"
	case OverwriteAged:
		return "overwrite-aged"
	case OverwriteAlways:
		return "overwrite-always"
	default:
		return "unknown"
	}
}

// ParseWriteMode는 문자열을 WriteMode로 변환합니다.
func ParseWriteMode(s string) (WriteMode, error) {
	switch s {
	case "refresh-always":
		return RefreshAlways, nil
	case "overwrite-aged", "":
		return OverwriteAged, nil
	case "overwrite-always":
		return OverwriteAlways, nil
	default:
		return 0, fmt.Errorf("%w: write mode %q", ErrUnsupportedPolicy, s)
	}
}

// =============================================================================
// Options: 캐시 옵션
// =============================================================================

// Options는 AgingCache 생성 옵션입니다.
type Options struct {
	// MaxEntries는 퇴거 전 최대 키 개수입니다. 0이면 무제한입니다.
	MaxEntries int

	// AgeLimit은 FIFO에서 항목의 최대 나이입니다.
	AgeLimit time.Duration

	// PurgeInterval은 퍼지 타이머 주기입니다. 최소 10초입니다.
	PurgeInterval time.Duration

	// ReplacementPolicy는 Aged Queue 구현을 선택합니다.
	ReplacementPolicy ReplacementPolicy

	// SetMode는 set 충돌 해결 모드입니다.
	SetMode WriteMode

	// DeleteMode는 delete 충돌 해결 모드입니다.
	DeleteMode WriteMode

	// EvictAtLevel이 nil이 아니면 퇴거는 이 계층부터 0까지만 지웁니다.
	EvictAtLevel *int

	// Logger는 로거입니다. nil이면 slog.Default()를 사용합니다.
	Logger *slog.Logger

	// Observer는 캐시 이벤트를 받습니다.
	Observer Observer

	// Clock은 큐가 사용하는 현재 시간 함수입니다. 테스트용입니다.
	Clock func() time.Time
}

// Option은 Options를 수정하는 함수입니다.
type Option func(*Options)

// DefaultOptions는 기본 FIFO 캐시 옵션을 반환합니다.
func DefaultOptions() *Options {
	return &Options{
		MaxEntries:        0,
		AgeLimit:          DefaultAgeLimit,
		PurgeInterval:     DefaultPurgeInterval,
		ReplacementPolicy: FIFO,
		SetMode:           OverwriteAged,
		DeleteMode:        OverwriteAged,
	}
}

// WithMaxEntries는 최대 키 개수를 설정합니다.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		o.MaxEntries = n
	}
}

// WithAgeLimit은 최대 나이를 설정합니다.
func WithAgeLimit(d time.Duration) Option {
	return func(o *Options) {
		o.AgeLimit = d
	}
}

// WithPurgeInterval은 퍼지 주기를 설정합니다.
func WithPurgeInterval(d time.Duration) Option {
	return func(o *Options) {
		o.PurgeInterval = d
	}
}

// WithReplacementPolicy는 퇴거 순서 정책을 설정합니다.
func WithReplacementPolicy(p ReplacementPolicy) Option {
	return func(o *Options) {
		o.ReplacementPolicy = p
	}
}

// WithSetMode는 set 모드를 설정합니다.
func WithSetMode(m WriteMode) Option {
	return func(o *Options) {
		o.SetMode = m
	}
}

// WithDeleteMode는 delete 모드를 설정합니다.
func WithDeleteMode(m WriteMode) Option {
	return func(o *Options) {
		o.DeleteMode = m
	}
}

// WithEvictAtLevel은 퇴거 계층 상한을 설정합니다.
func WithEvictAtLevel(level int) Option {
	return func(o *Options) {
		o.EvictAtLevel = &level
	}
}

// WithLogger는 로거를 설정합니다.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithObserver는 이벤트 Observer를 설정합니다.
func WithObserver(observer Observer) Option {
	return func(o *Options) {
		o.Observer = observer
	}
}

// WithClock은 큐의 시간 함수를 설정합니다.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// Validate는 옵션 조합을 검사합니다. 에러는 ErrInvalidOptions 또는
// ErrUnsupportedPolicy를 감쌉니다.
//
// Parameters:
//   - totalLevels: 계층 수 (EvictAtLevel 범위 검사용)
func (o *Options) Validate(totalLevels int) error {
	if o.MaxEntries < 0 {
		return fmt.Errorf("%w: maxEntries(%d): must not be negative", ErrInvalidOptions, o.MaxEntries)
	}

	if o.PurgeInterval < MinPurgeInterval {
		return fmt.Errorf("%w: purgeInterval(%s): must be at least %s", ErrInvalidOptions, o.PurgeInterval, MinPurgeInterval)
	}

	if o.ReplacementPolicy == FIFO && o.AgeLimit <= o.PurgeInterval {
		return fmt.Errorf("%w: ageLimit(%s): must be greater than purgeInterval(%s)", ErrInvalidOptions, o.AgeLimit, o.PurgeInterval)
	}

	if o.EvictAtLevel != nil && (*o.EvictAtLevel < 0 || *o.EvictAtLevel > totalLevels-1) {
		return fmt.Errorf("%w: evictAtLevel(%d): must be between 0 and %d", ErrInvalidOptions, *o.EvictAtLevel, totalLevels-1)
	}

	if o.ReplacementPolicy != FIFO {
		return fmt.Errorf("%w: replacementPolicy %d", ErrUnsupportedPolicy, o.ReplacementPolicy)
	}
	if !validWriteMode(o.SetMode) {
		return fmt.Errorf("%w: setMode %d", ErrUnsupportedPolicy, o.SetMode)
	}
	if !validWriteMode(o.DeleteMode) {
		return fmt.Errorf("%w: deleteMode %d", ErrUnsupportedPolicy, o.DeleteMode)
	}

	return nil
}

func validWriteMode(m WriteMode) bool {
	return m == RefreshAlways || m == OverwriteAged || m == OverwriteAlways
}
