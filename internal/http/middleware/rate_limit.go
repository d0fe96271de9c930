package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/barter-backend/internal/interface/http/response"
	"github.com/ignatzorin/barter-backend/internal/logger"
)

// RateLimitMiddleware ограничивает количество запросов.
// Ключ - пользователь из контекста, иначе IP. По умолчанию: 60 запросов в минуту.
func RateLimitMiddleware(limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 60
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: period,
		Limit:  limit,
	})

	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := c.Get(ContextUserIDKey); ok {
			key = fmt.Sprintf("user:%v", userID)
		}

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			// хранилище лимитера недоступно: пропускаем запрос
			logger.Log.WithError(err).Warn("rate limiter store failed")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", lctx.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", lctx.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", lctx.Reset))

		if lctx.Reached {
			response.TooManyRequests(c, "слишком много запросов, попробуйте позже")
			return
		}

		c.Next()
	}
}
