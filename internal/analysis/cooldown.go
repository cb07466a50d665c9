package analysis

import (
	"math"
	"sync"
	"time"
)

// Limiter counts attempts per key within a rolling window. The counter is
// incremented before the attempt is processed, so failed attempts still
// consume quota. When the window elapses the counter resets and the window
// restarts from the triggering request.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*attemptWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

type attemptWindow struct {
	count int
	start time.Time
}

// NewLimiter constructs a Limiter allowing limit attempts per window.
func NewLimiter(limit int, window time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		windows: make(map[string]*attemptWindow),
		limit:   limit,
		window:  window,
		now:     now,
	}
}

// Allow consumes one attempt for key. When the limit is exhausted it
// returns false plus the seconds remaining until the window reopens.
func (l *Limiter) Allow(key string) (bool, int) {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &attemptWindow{count: 1, start: now}
		return true, 0
	}
	if w.count >= l.limit {
		remaining := l.window - now.Sub(w.start)
		return false, int(math.Ceil(remaining.Seconds()))
	}
	w.count++
	return true, 0
}
