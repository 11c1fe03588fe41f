package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/pkg/logger"
)

// Logger writes one structured access line per request. Alert traffic is
// the signal that matters here: failures escalate to warn/error, the
// authenticated resident is attached when known, and the health and
// metrics scrapes stay at debug so they do not bury a panic POST.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString(CtxUserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := logger.WithModule("http")
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		case isQuietPath(path):
			log.Debug("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func isQuietPath(path string) bool {
	return path == "/health" || path == "/metrics"
}
