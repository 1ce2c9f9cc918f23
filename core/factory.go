package core

import (
	"fmt"
	"log/slog"
)

// NewAgingCache는 계층 구조 위에 캐시를 생성합니다.
// 옵션은 DefaultOptions() 위에 순서대로 적용되고, 검증에 실패하면
// ErrInvalidOptions 또는 ErrUnsupportedPolicy를 감싼 에러를 반환합니다.
//
// 사용 예:
//
//	h, _ := core.NewHierarchy(providers, nil)
//	cache, err := core.NewAgingCache(h,
//	    core.WithMaxEntries(10000),
//	    core.WithAgeLimit(30*time.Minute),
//	)
func NewAgingCache[K comparable, V any](hierarchy *Hierarchy[K, V], opts ...Option) (*AgingCache[K, V], error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return NewAgingCacheWithOptions(hierarchy, options)
}

// NewAgingCacheWithOptions는 완성된 Options로 캐시를 생성합니다.
func NewAgingCacheWithOptions[K comparable, V any](hierarchy *Hierarchy[K, V], options *Options) (*AgingCache[K, V], error) {
	if hierarchy == nil {
		return nil, fmt.Errorf("hierarchy is nil")
	}
	if options == nil {
		options = DefaultOptions()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := options.Validate(hierarchy.TotalLevels()); err != nil {
		logger.Error("invalid cache options", "error", err)
		return nil, err
	}

	queue := NewFIFOQueue[K](&QueueConfig{
		MaxEntries: options.MaxEntries,
		AgeLimit:   options.AgeLimit,
		Clock:      options.Clock,
	})

	setStrategy, err := NewSetStrategy(options.SetMode, hierarchy, queue, logger)
	if err != nil {
		return nil, err
	}
	deleteStrategy, err := NewDeleteStrategy(options.DeleteMode, hierarchy, queue, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("created aging cache",
		"levels", hierarchy.TotalLevels(),
		"replacement_policy", options.ReplacementPolicy.String(),
		"set_mode", options.SetMode.String(),
		"delete_mode", options.DeleteMode.String(),
		"max_entries", options.MaxEntries,
		"age_limit", options.AgeLimit,
		"purge_interval", options.PurgeInterval,
	)

	return newAgingCache(hierarchy, queue, setStrategy, deleteStrategy, options, logger), nil
}
