package local

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter throttles credential attempts per email to slow brute
// forcing of passwords and confirmation codes.
type attemptLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func newAttemptLimiter(perWindow int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		limit:       rate.Limit(float64(perWindow) / window.Seconds()),
		burst:       perWindow,
		lastCleanup: time.Now(),
	}
}

// allow consumes one attempt for the key, reporting whether the attempt
// may proceed.
func (l *attemptLimiter) allow(key string) bool {
	lim, ok := l.limiters.Load(key)
	if !ok {
		lim, _ = l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	}

	l.maybeCleanup()
	return lim.(*rate.Limiter).Allow()
}

// maybeCleanup drops limiters whose bucket has refilled completely;
// those keys have been idle for at least a full window and can be
// rebuilt on demand.
func (l *attemptLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
