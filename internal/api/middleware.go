package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	statusWarnThreshold  = 400
	statusErrorThreshold = 500
)

// RequestLogger is a gin middleware that logs requests through the given
// zerolog logger.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		method := c.Request.Method
		clientIP := c.ClientIP()
		ua := c.Request.UserAgent()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		evt := logger.Info()
		switch {
		case status >= statusErrorThreshold:
			evt = logger.Error()
		case status >= statusWarnThreshold:
			evt = logger.Warn()
		}

		if raw != "" {
			path = path + "?" + raw
		}

		evt.
			Int("status", status).
			Str("method", method).
			Str("path", path).
			Dur("latency", latency).
			Str("client_ip", clientIP).
			Int("bytes", size).
			Str("user_agent", ua).
			Msg("http request completed")
	}
}
