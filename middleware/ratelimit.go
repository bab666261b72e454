package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/limiter"
	"github.com/wyfcoding/optionlab/response"
	"github.com/wyfcoding/optionlab/xerrors"
)

// RateLimitMiddleware 以客户端 IP 为 key 限流。限流器出错时放行并告警。
func RateLimitMiddleware(l limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "rate limiter internal error, fail-open applied", "key", key, "error", err)
			c.Next()
			return
		}
		if !allowed {
			slog.WarnContext(c.Request.Context(), "request rejected by rate limiter", "key", key, "path", c.Request.URL.Path)
			response.Error(c, xerrors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
