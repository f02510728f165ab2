package app

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

// RateLimiter gives every user a token bucket of limit events refilled
// over interval.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[domain.UserID]*rate.Limiter
	every   rate.Limit
	burst   int
	now     func() time.Time
}

// NewRateLimiter returns nil when limit is not positive; a nil limiter
// allows everything.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &RateLimiter{
		buckets: make(map[domain.UserID]*rate.Limiter),
		every:   rate.Every(interval / time.Duration(limit)),
		burst:   limit,
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(uid domain.UserID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[uid]
	if !ok {
		b = rate.NewLimiter(rl.every, rl.burst)
		rl.buckets[uid] = b
	}
	return b.AllowN(rl.now(), 1)
}

// Forget drops the user's bucket, called when the user leaves.
func (rl *RateLimiter) Forget(uid domain.UserID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.buckets, uid)
	rl.mu.Unlock()
}
