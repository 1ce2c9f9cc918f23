package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{"기본값", nil, nil},
		{"음수 maxEntries", []Option{WithMaxEntries(-1)}, ErrInvalidOptions},
		{"무제한 maxEntries", []Option{WithMaxEntries(0)}, nil},
		{"짧은 purgeInterval", []Option{WithPurgeInterval(9 * time.Second)}, ErrInvalidOptions},
		{"최소 purgeInterval", []Option{WithPurgeInterval(MinPurgeInterval)}, nil},
		{"ageLimit가 purgeInterval 이하", []Option{WithAgeLimit(time.Minute), WithPurgeInterval(time.Minute)}, ErrInvalidOptions},
		{"evictAtLevel 음수", []Option{WithEvictAtLevel(-1)}, ErrInvalidOptions},
		{"evictAtLevel 최상위", []Option{WithEvictAtLevel(2)}, nil},
		{"evictAtLevel 범위 초과", []Option{WithEvictAtLevel(3)}, ErrInvalidOptions},
		{"알 수 없는 교체 정책", []Option{WithReplacementPolicy(ReplacementPolicy(7))}, ErrUnsupportedPolicy},
		{"알 수 없는 set 모드", []Option{WithSetMode(WriteMode(7))}, ErrUnsupportedPolicy},
		{"알 수 없는 delete 모드", []Option{WithDeleteMode(WriteMode(7))}, ErrUnsupportedPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			for _, opt := range tt.opts {
				opt(o)
			}

			err := o.Validate(3)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("예상치 못한 에러: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("에러가 %v가 아닙니다: %v", tt.wantErr, err)
			}
		})
	}
}

func TestOptionsValidateMaxEntriesMessage(t *testing.T) {
	o := DefaultOptions()
	o.MaxEntries = -5

	err := o.Validate(2)
	if err == nil || !strings.Contains(err.Error(), "must not be negative") {
		t.Errorf("음수 maxEntries 메시지가 잘못되었습니다: %v", err)
	}
}

func TestParseWriteMode(t *testing.T) {
	tests := map[string]WriteMode{
		"refresh-always":   RefreshAlways,
		"overwrite-aged":   OverwriteAged,
		"overwrite-always": OverwriteAlways,
		"":                 OverwriteAged,
	}
	for s, want := range tests {
		got, err := ParseWriteMode(s)
		if err != nil || got != want {
			t.Errorf("ParseWriteMode(%q) = %v, %v", s, got, err)
		}
		if s != "" && got.String() != s {
			t.Errorf("String()이 %q가 아닙니다: %q", s, got.String())
		}
	}

	if _, err := ParseWriteMode("lru"); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Errorf("ErrUnsupportedPolicy가 아닙니다: %v", err)
	}
}

func TestParsePolicies(t *testing.T) {
	if p, err := ParseReplacementPolicy("fifo"); err != nil || p != FIFO {
		t.Errorf("ParseReplacementPolicy 실패: %v, %v", p, err)
	}
	if _, err := ParseReplacementPolicy("lfu"); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Errorf("ErrUnsupportedPolicy가 아닙니다: %v", err)
	}

	if p, err := ParseUpdatePolicy("always"); err != nil || p != Always {
		t.Errorf("ParseUpdatePolicy 실패: %v, %v", p, err)
	}
	if p, _ := ParseUpdatePolicy(""); p != OnlyIfKeyExist {
		t.Errorf("기본 갱신 정책이 OnlyIfKeyExist가 아닙니다: %v", p)
	}
	if _, err := ParseUpdatePolicy("never"); !errors.Is(err, ErrUnsupportedPolicy) {
		t.Errorf("ErrUnsupportedPolicy가 아닙니다: %v", err)
	}
}

func TestWriteStatusClassify(t *testing.T) {
	tests := []struct {
		written, expected int
		want              WriteStatus
	}{
		{3, 3, Success},
		{0, 3, UnspecifiedError},
		{1, 3, PartialWrite},
		{2, 2, Success},
	}
	for _, tt := range tests {
		if got := ClassifyWrite(tt.written, tt.expected); got != tt.want {
			t.Errorf("ClassifyWrite(%d, %d) = %s, want %s", tt.written, tt.expected, got, tt.want)
		}
	}

	if !Refreshed.IsSuccess() || PartialWrite.IsSuccess() {
		t.Error("IsSuccess가 잘못되었습니다")
	}
}
