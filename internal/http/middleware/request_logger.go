package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/logger"
)

// RequestLogger пишет структурированный лог запроса и HTTP метрики.
// m может быть nil.
func RequestLogger(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.Observe(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())

		entry := logger.Log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"route":      route,
			"status":     status,
			"latency_ms": elapsed.Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if userID, ok := c.Get(ContextUserIDKey); ok {
			entry = entry.WithField("user_id", userID)
		}
		switch {
		case status >= 500:
			entry.Warn("request failed")
		default:
			entry.Debug("request handled")
		}
	}
}
