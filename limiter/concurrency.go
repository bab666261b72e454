package limiter

import (
	"context"
	"errors"
	"log/slog"
)

// ErrConcurrencyLimit 并发上限已触发。
var ErrConcurrencyLimit = errors.New("concurrency limit exceeded")

// SemaphoreLimiter 带缓冲通道实现的并发信号量。
type SemaphoreLimiter struct {
	sem chan struct{}
}

// NewSemaphoreLimiter 创建并发信号量，n <= 0 表示不限制。
func NewSemaphoreLimiter(n int) *SemaphoreLimiter {
	if n <= 0 {
		return &SemaphoreLimiter{}
	}
	return &SemaphoreLimiter{sem: make(chan struct{}, n)}
}

// Acquire 阻塞获取一个令牌，返回的 release 只作用于本实例，
// 因此实例被热替换后仍能正确归还。
func (l *SemaphoreLimiter) Acquire(ctx context.Context) (release func(), err error) {
	if l == nil || l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		return l.release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire 非阻塞获取，失败返回 ErrConcurrencyLimit。
func (l *SemaphoreLimiter) TryAcquire() (release func(), err error) {
	if l == nil || l.sem == nil {
		return func() {}, nil
	}
	select {
	case l.sem <- struct{}{}:
		return l.release, nil
	default:
		return nil, ErrConcurrencyLimit
	}
}

// Cap 返回并发上限，0 表示不限制。
func (l *SemaphoreLimiter) Cap() int {
	if l == nil {
		return 0
	}
	return cap(l.sem)
}

func (l *SemaphoreLimiter) release() {
	select {
	case <-l.sem:
	default:
		slog.Warn("concurrency limiter release without acquire")
	}
}
