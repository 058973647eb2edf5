package main

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/cloudx-io/assetauction/core"
)

// maxLimiters bounds the per-caller table; it is reset when exceeded.
const maxLimiters = 10000

// callerLimiter rate limits mutating requests per caller.
type callerLimiter struct {
	mu       sync.Mutex
	limiters map[core.Principal]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newCallerLimiter returns nil when perSecond is zero, which disables limiting.
func newCallerLimiter(perSecond float64, burst int) *callerLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &callerLimiter{
		limiters: make(map[core.Principal]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *callerLimiter) get(caller core.Principal) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[caller]
	if !exists {
		if len(l.limiters) >= maxLimiters {
			l.limiters = make(map[core.Principal]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[caller] = limiter
	}
	return limiter
}

// Allow reports whether caller may issue another mutating request now.
func (l *callerLimiter) Allow(caller core.Principal) bool {
	if l == nil {
		return true
	}
	return l.get(caller).Allow()
}
