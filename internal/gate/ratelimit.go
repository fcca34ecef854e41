package gate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// loginLimiter throttles login attempts per client address.
type loginLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginLimiter(rps float64, burst int) *loginLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &loginLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow reports whether key may attempt a login at now. A nil limiter allows everything.
func (l *loginLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RetryAfter returns how long key must wait at now before its next attempt is
// allowed. It does not consume a token.
func (l *loginLimiter) RetryAfter(key string, now time.Time) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if !ok {
		return 0
	}
	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return 0
	}
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return delay
}

// Prune drops limiters idle since before now-limiterIdleTTL.
func (l *loginLimiter) Prune(now time.Time) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}
