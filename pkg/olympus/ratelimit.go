package olympus

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a client has used up its tokens.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ClientLimiter keeps one token bucket per client key and forgets idle clients.
type ClientLimiter struct {
	limit rate.Limit
	burst int

	limiters map[string]*limiterEntry
	mu       sync.Mutex

	idleAfter   time.Duration
	cleanupStop chan struct{}
	cleanupDone chan struct{}
	now         func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewClientLimiter allows perSecond requests per client with the given burst.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	l := &ClientLimiter{
		limit:       rate.Limit(perSecond),
		burst:       burst,
		limiters:    make(map[string]*limiterEntry),
		idleAfter:   10 * time.Minute,
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}
	go l.cleanup(l.idleAfter / 2)
	return l
}

// Allow takes a token for key.
func (l *ClientLimiter) Allow(key string) error {
	if key == "" {
		key = "default"
	}
	if !l.get(key).AllowN(l.now(), 1) {
		return ErrRateLimitExceeded
	}
	return nil
}

func (l *ClientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.limiters[key]; ok {
		entry.lastAccess = l.now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = &limiterEntry{limiter: limiter, lastAccess: l.now()}
	return limiter
}

// Prune drops limiters idle for longer than the idle period.
func (l *ClientLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-l.idleAfter)
	removed := 0
	for key, entry := range l.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

func (l *ClientLimiter) cleanup(every time.Duration) {
	defer close(l.cleanupDone)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Prune()
		case <-l.cleanupStop:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (l *ClientLimiter) Close() error {
	close(l.cleanupStop)
	<-l.cleanupDone
	return nil
}
