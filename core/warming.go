// Package core는 AgingCache의 핵심 엔진을 구현합니다.
// 이 파일은 재시작 후 퇴거 큐 복원(Rehydrate)을 구현합니다.
package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Rehydrate: 퇴거 큐 예열
// =============================================================================
// 퇴거 큐는 메모리에만 있으므로, 영속 최상위 계층을 가진 캐시가 재시작되면
// 이전에 저장된 키는 큐에 없어 퇴거되지 않습니다.
// Rehydrate는 최상위 계층의 키와 age를 읽어 큐와 하위 계층을 다시 채웁니다.
// 자동으로 실행되지 않으며 호출자가 명시적으로 호출해야 합니다.
// =============================================================================

// RehydrateConfig는 Rehydrate 설정입니다.
type RehydrateConfig struct {
	// Concurrency는 동시 조회 수입니다.
	Concurrency int

	// Timeout은 전체 작업 타임아웃입니다. 0이면 없습니다.
	Timeout time.Duration

	// OnProgress는 진행 상황 콜백입니다.
	OnProgress func(done, total int)
}

// DefaultRehydrateConfig는 기본 설정을 반환합니다.
func DefaultRehydrateConfig() *RehydrateConfig {
	return &RehydrateConfig{
		Concurrency: 10,
		Timeout:     5 * time.Minute,
	}
}

// RehydrateResult는 Rehydrate 결과입니다.
type RehydrateResult struct {
	Total     int
	Loaded    int
	Missing   int
	Duration  time.Duration
	StartTime time.Time
}

// SuccessRate는 큐에 복원된 키의 비율을 반환합니다.
func (r *RehydrateResult) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Loaded) / float64(r.Total)
}

// Rehydrate는 최상위 계층의 모든 키를 읽어 저장된 age로 퇴거 큐에 넣고,
// 같은 값으로 최상위 아래 계층들을 채웁니다.
// 조회 도중 사라진 키는 Missing으로 셉니다.
func (c *AgingCache[K, V]) Rehydrate(ctx context.Context, config *RehydrateConfig) (*RehydrateResult, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if config == nil {
		config = DefaultRehydrateConfig()
	}
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	result := &RehydrateResult{StartTime: time.Now()}

	keys, err := c.hierarchy.GetKeysAtTopLevel(ctx)
	if err != nil {
		return nil, err
	}
	result.Total = len(keys)

	g, gctx := errgroup.WithContext(ctx)
	if config.Concurrency > 0 {
		g.SetLimit(config.Concurrency)
	}

	var mu sync.Mutex
	for _, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			value := c.hierarchy.GetValueAtTopLevel(gctx, key)
			if value != nil {
				// 하위 계층이 비어 있으면 퇴거가 삭제 대신 끌어내리기로 끝나므로 함께 채웁니다.
				written := c.hierarchy.SetBelowTopLevel(gctx, key, *value)
				if status := written.Classify(c.hierarchy.TopLevel()); status != Success {
					c.logger.Warn("failed to warm lower levels", "key", key, "status", status.String())
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if value == nil {
				result.Missing++
			} else {
				c.queue.AddOrReplace(key, value.Age)
				result.Loaded++
			}
			if config.OnProgress != nil {
				config.OnProgress(result.Loaded+result.Missing, result.Total)
			}
			return nil
		})
	}

	err = g.Wait()
	result.Duration = time.Since(result.StartTime)
	c.logger.Info("rehydrated eviction queue",
		"total", result.Total,
		"loaded", result.Loaded,
		"missing", result.Missing,
		"duration", result.Duration,
	)
	return result, err
}
