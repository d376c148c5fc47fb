// Package dedup suppresses duplicate processing of the same trigger
// (message + user) within a short window, e.g. a reaction being toggled
// off and on again, or the transport delivering an update twice.
package dedup

import (
	"sync"
	"time"
)

const DefaultWindow = 300 * time.Second

type key struct {
	triggerID string
	userID    int64
}

// Registry is a set of (trigger, user) pairs currently in window.
// Expiry is lazy: TryAccept treats an expired entry as absent, and a
// periodic Sweep bounds memory. No per-insert timers.
type Registry struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[key]time.Time // value: expiry instant

	now func() time.Time
}

func New(window time.Duration) *Registry {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Registry{
		window:  window,
		entries: map[key]time.Time{},
		now:     time.Now,
	}
}

// TryAccept reports whether this trigger should be processed. The first
// call for a pair inside the window wins; repeats are suppressed until
// the window elapses, after which the pair may be accepted again.
func (r *Registry) TryAccept(triggerID string, userID int64) bool {
	k := key{triggerID: triggerID, userID: userID}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if until, ok := r.entries[k]; ok && now.Before(until) {
		return false
	}
	r.entries[k] = now.Add(r.window)
	return true
}

// Forget removes a pair immediately, allowing re-triggering before the
// window elapses. Removing an absent pair is a no-op, so it tolerates
// races with expiry.
func (r *Registry) Forget(triggerID string, userID int64) {
	k := key{triggerID: triggerID, userID: userID}
	r.mu.Lock()
	delete(r.entries, k)
	r.mu.Unlock()
}

// Sweep removes expired pairs and returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, until := range r.entries {
		if !now.Before(until) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the current entry count, expired entries included until
// observed or swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
