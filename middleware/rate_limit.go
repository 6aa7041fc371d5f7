package middleware

import (
	"accidentwatch/utils"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type RateLimitConfig struct {
	Redis     *redis.Client
	Requests  int
	Window    time.Duration
	KeyPrefix string
}

// RateLimiter is a Redis sliding-window log keyed by client IP. Redis errors
// let the request through.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{config: config, now: time.Now}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.Redis == nil || rl.config.Requests <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("%s:ip:%s", rl.config.KeyPrefix, c.ClientIP())
		allowed, remaining, resetTime, err := rl.check(c.Request.Context(), key)
		if err != nil {
			logrus.Errorf("Rate limit check failed: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			logrus.WithFields(logrus.Fields{
				"client_ip":   c.ClientIP(),
				"path":        c.Request.URL.Path,
				"retry_after": retryAfter,
			}).Warn("Rate limit exceeded")

			utils.RateLimitResponse(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) check(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := rl.now()
	window := rl.config.Window
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := rl.config.Redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	current := count.Val()
	resetTime := now.Add(window)
	allowed := current < int64(rl.config.Requests)
	if !allowed {
		rl.config.Redis.ZRem(ctx, key, member)
	}

	remaining := rl.config.Requests - int(current) - 1
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, resetTime, nil
}

// SubmissionRateLimit limits report submissions over HTTP per client IP.
func SubmissionRateLimit(client *redis.Client, perMinute int) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:     client,
		Requests:  perMinute,
		Window:    time.Minute,
		KeyPrefix: "report_rate_limit",
	}).Middleware()
}
