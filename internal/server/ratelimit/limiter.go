// Package ratelimit implements a bounded, self-cleaning sliding-window rate
// limiter keyed by (subject, action class).
//
// Window state is process-local and intentionally approximate across multiple
// instances: it is a throttle, not a ledger. Every access evicts expired
// timestamps for its key before counting, so counts are correct regardless of
// sweep timing; a periodic sweep removes keys whose timestamp set is empty,
// bounding memory to active subjects.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livebell/engine/internal/logging"
)

// Limit is the maximum number of actions allowed inside a sliding Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits mirrors the production action classes.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"check_live":       {Max: 5, Window: time.Minute},
		"live_check_logic": {Max: 10, Window: time.Minute},
		"button_click":     {Max: 20, Window: time.Minute},
		"payment":          {Max: 3, Window: 5 * time.Minute},
		"message":          {Max: 10, Window: time.Minute},
	}
}

type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	actions map[string][]time.Time

	sweepEvery time.Duration
	lastSweep  time.Time
	logger     logging.Logger
}

func New(limits map[string]Limit, sweepEvery time.Duration, logger logging.Logger) *Limiter {
	return &Limiter{
		limits:     limits,
		actions:    make(map[string][]time.Time),
		sweepEvery: sweepEvery,
		logger:     logger.With("module", "ratelimit"),
	}
}

func key(subjectID int64, class string) string {
	return fmt.Sprintf("%d:%s", subjectID, class)
}

// evictLocked drops timestamps older than now-window for k. Caller holds mu.
func (l *Limiter) evictLocked(k string, window time.Duration, now time.Time) []time.Time {
	q := l.actions[k]
	cutoff := now.Add(-window)
	i := 0
	for i < len(q) && !q[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q = append([]time.Time(nil), q[i:]...)
		if len(q) == 0 {
			delete(l.actions, k)
		} else {
			l.actions[k] = q
		}
	}
	return q
}

// Allow reports whether the subject may perform an action of the given class
// at now, recording the action when allowed. Classes without a configured
// limit are always allowed.
func (l *Limiter) Allow(subjectID int64, class string, now time.Time) bool {
	limit, ok := l.limits[class]
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(subjectID, class)
	q := l.evictLocked(k, limit.Window, now)

	if len(q) >= limit.Max {
		return false
	}

	l.actions[k] = append(q, now)
	l.maybeSweepLocked(now)
	return true
}

// Remaining returns how many actions of class the subject may still perform
// inside the current window.
func (l *Limiter) Remaining(subjectID int64, class string, now time.Time) int {
	limit, ok := l.limits[class]
	if !ok {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.evictLocked(key(subjectID, class), limit.Window, now)
	if n := limit.Max - len(q); n > 0 {
		return n
	}
	return 0
}

// RetryAfter returns the time until the next slot opens for the subject.
// Denials must surface this to the caller; silent throttling is a defect.
func (l *Limiter) RetryAfter(subjectID int64, class string, now time.Time) time.Duration {
	limit, ok := l.limits[class]
	if !ok {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.evictLocked(key(subjectID, class), limit.Window, now)
	if len(q) < limit.Max {
		return 0
	}

	d := q[0].Add(limit.Window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// maybeSweepLocked runs a full sweep if the sweep cadence has elapsed.
// Caller holds mu.
func (l *Limiter) maybeSweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.sweepLocked(now)
}

func (l *Limiter) sweepLocked(now time.Time) {
	removed := 0
	for k := range l.actions {
		// The widest configured window bounds how long any timestamp can
		// still matter; evict against each key's own class window.
		class := classOf(k)
		limit, ok := l.limits[class]
		if !ok {
			delete(l.actions, k)
			removed++
			continue
		}
		if q := l.evictLocked(k, limit.Window, now); len(q) == 0 {
			removed++
		}
	}
	l.lastSweep = now
	if removed > 0 {
		l.logger.Debug(context.Background(), "swept rate limit keys", "removed", removed)
	}
}

// Sweep removes keys with no live timestamps. Exposed for the periodic
// sweeper and tests.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)
}

// Run sweeps on a ticker until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(l.sweepEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

// Len reports the number of tracked keys. Used by tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

func classOf(k string) string {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return k[i+1:]
		}
	}
	return ""
}
