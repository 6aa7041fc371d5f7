package utils

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter allows rate events per period with bursts up to rate. Tokens
// refill continuously, so partial progress toward the next token is kept.
type RateLimiter struct {
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimiter returns a limiter starting with a full bucket. A rate of
// zero or less disables limiting.
func NewRateLimiter(n int, period time.Duration) *RateLimiter {
	if n <= 0 || period <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0), now: time.Now}
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(period/time.Duration(n)), n),
		now:     time.Now,
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.AllowN(rl.now(), 1)
}

func (rl *RateLimiter) Remaining() int {
	return int(rl.limiter.TokensAt(rl.now()))
}
