package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one structured line per request. Offline outcomes
// (queued writes and cache fallbacks) are added as fields when present.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		l := zerolog.Ctx(c.Request.Context())
		if l.GetLevel() == zerolog.Disabled {
			l = &log.Logger
		}

		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = l.Error()
		case statusCode >= 400:
			event = l.Warn()
		default:
			event = l.Info()
		}

		event = event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", statusCode).
			Int64("duration_ms", latency.Milliseconds()).
			Str("ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent())

		h := c.Writer.Header()
		if h.Get("X-Offline-Queued") != "" {
			event = event.Bool("queued", true).Str("action_id", h.Get("X-Offline-Action-Id"))
		}
		if fb := h.Get("X-Offline-Fallback"); fb != "" {
			event = event.Str("fallback", fb)
		}
		event.Msg("HTTP request")
	}
}
