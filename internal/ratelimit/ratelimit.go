// Package ratelimit implements per-user sliding-window admission
// control for translation triggers.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the sliding interval over which accepted requests count
// against a user's quota.
const Window = 60 * time.Second

// Limiter tracks, per user, the timestamps of previously accepted
// requests. Rejected requests are not recorded, so a user hammering the
// bot does not push their own window forward.
//
// The limit is supplied per call: it comes from chat settings, and the
// limiter deliberately owns no configuration state.
type Limiter struct {
	mu      sync.Mutex
	windows map[int64][]time.Time

	now func() time.Time
}

func New() *Limiter {
	return &Limiter{
		windows: map[int64][]time.Time{},
		now:     time.Now,
	}
}

// Allow prunes the user's window to the trailing 60 seconds, then
// admits the request iff fewer than limit accepted requests remain.
// Admitted requests are recorded; rejected ones are not.
func (l *Limiter) Allow(userID int64, limit int) bool {
	if limit <= 0 {
		return false
	}
	now := l.now()
	cutoff := now.Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.windows[userID]
	kept := win[:0]
	for _, ts := range win {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.windows[userID] = kept
		return false
	}

	l.windows[userID] = append(kept, now)
	return true
}

// Sweep drops users whose whole window has aged out. Purely a memory
// aid; Allow prunes on every access.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, win := range l.windows {
		live := false
		for _, ts := range win {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}
