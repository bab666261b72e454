// Package limiter 提供进程内的请求速率与并发限制。
package limiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter 定义限流器的通用行为。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter 基于令牌桶的单实例限流器，参数可在运行时调整。
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter 创建令牌桶限流器，桶初始为满。r 为每秒令牌数，b 为突发容量；r <= 0 表示不限流。
func NewLocalLimiter(r rate.Limit, b int) *LocalLimiter {
	if r <= 0 {
		return &LocalLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &LocalLimiter{limiter: rate.NewLimiter(r, burstFor(r, b))}
}

// Update 调整速率与突发容量，桶内已有令牌保留。
func (l *LocalLimiter) Update(r rate.Limit, b int) {
	if r <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(r)
	l.limiter.SetBurst(burstFor(r, b))
}

func burstFor(r rate.Limit, b int) int {
	if b > 0 {
		return b
	}
	return max(int(r), 1)
}

// Allow 取走一个令牌。本地限流为全局限流，key 不参与计算。
func (l *LocalLimiter) Allow(_ context.Context, _ string) (bool, error) {
	return l.limiter.Allow(), nil
}
