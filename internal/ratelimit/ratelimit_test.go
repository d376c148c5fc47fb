package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter() (*Limiter, *time.Time) {
	l := New()
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimitWithinWindow(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		if !l.Allow(42, 5) {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow(42, 5) {
		t.Fatalf("sixth call within the minute should be rejected")
	}
}

func TestRejectionIsNotRecorded(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		if !l.Allow(1, 3) {
			t.Fatalf("setup call %d rejected", i+1)
		}
	}
	// Hammering while over quota must not extend the window.
	for i := 0; i < 10; i++ {
		*now = now.Add(time.Second)
		if l.Allow(1, 3) {
			t.Fatalf("over-quota call allowed")
		}
	}
	// 61s after the first accepted call, one slot frees up.
	*now = now.Add(51 * time.Second)
	if !l.Allow(1, 3) {
		t.Fatalf("expected capacity to free 60s after the oldest accepted call")
	}
}

func TestCapacityFreesAfterWindow(t *testing.T) {
	l, now := newTestLimiter()

	if !l.Allow(7, 1) {
		t.Fatalf("first call rejected")
	}
	*now = now.Add(59 * time.Second)
	if l.Allow(7, 1) {
		t.Fatalf("call at 59s should still be rejected")
	}
	*now = now.Add(2 * time.Second)
	if !l.Allow(7, 1) {
		t.Fatalf("call at 61s should be allowed")
	}
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	if !l.Allow(1, 1) {
		t.Fatalf("user 1 first call rejected")
	}
	if !l.Allow(2, 1) {
		t.Fatalf("user 2 must have their own window")
	}
}

func TestZeroLimitRejects(t *testing.T) {
	l, _ := newTestLimiter()
	if l.Allow(1, 0) {
		t.Fatalf("zero limit must reject")
	}
}

func TestSweepDropsAgedWindows(t *testing.T) {
	l, now := newTestLimiter()

	l.Allow(1, 5)
	l.Allow(2, 5)
	*now = now.Add(2 * Window)
	l.Allow(3, 5)

	if removed := l.Sweep(); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
}
