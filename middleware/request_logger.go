package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionlab/contextx"
)

// Logger 访问日志中间件。4xx 记 Warn，5xx 记 Error，超过 slow 记慢请求。
func Logger(logger *slog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cost := time.Since(start)

		ctx := c.Request.Context()
		status := c.Writer.Status()
		args := append(contextx.LogAttrs(ctx),
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"ip", c.ClientIP(),
			"cost", cost,
		)
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "HTTP Request", args...)
		case status >= 400:
			logger.WarnContext(ctx, "HTTP Request", args...)
		case slow > 0 && cost > slow:
			logger.WarnContext(ctx, "HTTP Request slow", args...)
		default:
			logger.InfoContext(ctx, "HTTP Request", args...)
		}
	}
}
