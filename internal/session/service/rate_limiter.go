package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterMaxIdleTime     = 1 * time.Hour
)

// RegistrationRateLimiter throttles registration-grant issuance per origin
// address using a token bucket per IP. It smooths bursts within a single
// process; the cross-process window is enforced separately by the shared
// counter in the cache store.
type RegistrationRateLimiter struct {
	limiters sync.Map // ip -> *limiterEntry
	rps      rate.Limit
	burst    int
	done     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRegistrationRateLimiter creates a limiter allowing rps requests per
// second with the given burst per origin address, and starts a background
// goroutine that evicts limiters idle for more than an hour.
func NewRegistrationRateLimiter(rps float64, burst int) *RegistrationRateLimiter {
	l := &RegistrationRateLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		done:  make(chan struct{}),
	}
	go l.cleanupStale()
	return l
}

// Allow reports whether a request from the origin address may proceed.
func (l *RegistrationRateLimiter) Allow(originIP string) bool {
	actual, _ := l.limiters.LoadOrStore(originIP, &limiterEntry{
		limiter:  rate.NewLimiter(l.rps, l.burst),
		lastSeen: time.Now(),
	})
	entry := actual.(*limiterEntry)

	entry.mu.Lock()
	entry.lastSeen = time.Now()
	entry.mu.Unlock()

	return entry.limiter.Allow()
}

// Close stops the cleanup goroutine.
func (l *RegistrationRateLimiter) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

func (l *RegistrationRateLimiter) cleanupStale() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterMaxIdleTime)
			l.limiters.Range(func(key, value any) bool {
				entry := value.(*limiterEntry)
				entry.mu.Lock()
				stale := entry.lastSeen.Before(cutoff)
				entry.mu.Unlock()
				if stale {
					l.limiters.Delete(key)
				}
				return true
			})
		}
	}
}
