package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/barter-backend/internal/logger"
)

const (
	DefaultAttempts = 5
	DefaultPeriod   = 15 * time.Minute
)

// AttemptLimiter считает попытки ввода QR и кодов по ключу (пользователь, заявка).
type AttemptLimiter struct {
	instance *limiter.Limiter
}

func NewAttemptLimiter(limit int64, period time.Duration) *AttemptLimiter {
	if limit <= 0 {
		limit = DefaultAttempts
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	rate := limiter.Rate{Period: period, Limit: limit}
	return &AttemptLimiter{instance: limiter.New(memory.NewStore(), rate)}
}

// Allow засчитывает попытку. При сбое хранилища попытка разрешается.
func (l *AttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.instance.Get(ctx, key)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("ratelimit: хранилище недоступно")
		return true, nil
	}
	return !res.Reached, nil
}
