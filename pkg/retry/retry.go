// Package retry 为耗时的外部调用提供统一的重试策略。
package retry

import (
	"context"
	"time"
)

// Policy 重试策略
//
// MaxAttempts 为总尝试次数（含第一次），Backoff 返回第 n 次失败后（n 从 1 开始）的等待时长，
// Retryable 判断错误是否值得重试。全部尝试失败时返回最后一次的错误。
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// Linear 第 n 次失败后等待 n*step
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Default 共 3 次，间隔 1s、2s，只重试 retryable 判定为真的错误
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Linear(time.Second),
		Retryable:   retryable,
	}
}

// Do 按策略执行 fn，ctx 取消时立即返回 ctx.Err()
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
