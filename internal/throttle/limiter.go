// Package throttle drops calls that arrive faster than once per window for
// the same key.
package throttle

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one single-token bucket per key. Denied calls are dropped,
// never queued. Idle keys are evicted periodically.
type Limiter struct {
	limit   rate.Limit
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string]*entry
	hits  uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing one call per window per key. A
// non-positive window disables limiting.
func New(window time.Duration) *Limiter {
	if window <= 0 {
		return nil
	}
	return &Limiter{
		limit:   rate.Every(window),
		idleTTL: max(10*window, time.Minute),
		byKey:   make(map[string]*entry),
	}
}

// Allow reports whether a call for key may proceed at now.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, 1)}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%256 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// AllowID is Allow keyed by a numeric id.
func (l *Limiter) AllowID(id int64, now time.Time) bool {
	return l.Allow(strconv.FormatInt(id, 10), now)
}
