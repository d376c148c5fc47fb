package cache

import (
	"testing"
	"time"
)

func newTestCache(ttl time.Duration) (*Cache, *time.Time) {
	c := New(ttl)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSetGetWithinTTL(t *testing.T) {
	c, _ := newTestCache(300 * time.Second)

	c.Set("hello", "fr", Result{Text: "bonjour", DetectedLang: "en"})
	got, ok := c.Get("hello", "fr")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Text != "bonjour" || got.DetectedLang != "en" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestGetExpiresLazily(t *testing.T) {
	c, now := newTestCache(300 * time.Second)

	c.Set("hello", "fr", Result{Text: "bonjour", DetectedLang: "en"})
	*now = now.Add(301 * time.Second)

	if _, ok := c.Get("hello", "fr"); ok {
		t.Fatalf("expected miss after TTL")
	}
	// The expired entry must be gone, not just hidden.
	if c.Len() != 0 {
		t.Fatalf("expired entry was not removed, len=%d", c.Len())
	}
	if _, ok := c.Get("hello", "fr"); ok {
		t.Fatalf("expected repeated miss without Cleanup")
	}
}

func TestSetOverwritesAndRefreshes(t *testing.T) {
	c, now := newTestCache(300 * time.Second)

	c.Set("hello", "fr", Result{Text: "bonjour", DetectedLang: "en"})
	*now = now.Add(299 * time.Second)
	c.Set("hello", "fr", Result{Text: "salut", DetectedLang: "en"})
	*now = now.Add(2 * time.Second)

	got, ok := c.Get("hello", "fr")
	if !ok {
		t.Fatalf("expected hit, overwrite should refresh the timestamp")
	}
	if got.Text != "salut" {
		t.Fatalf("expected overwritten value, got %q", got.Text)
	}
}

func TestCleanupSweep(t *testing.T) {
	c, now := newTestCache(60 * time.Second)

	c.Set("a", "fr", Result{Text: "1"})
	c.Set("b", "de", Result{Text: "2"})
	*now = now.Add(61 * time.Second)
	c.Set("c", "es", Result{Text: "3"})

	if removed := c.Cleanup(); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Get("c", "es"); !ok {
		t.Fatalf("fresh entry should survive the sweep")
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", "fr", Result{Text: "1"})
	c.Clear()
	if _, ok := c.Get("a", "fr"); ok {
		t.Fatalf("expected miss after Clear")
	}
}

// Keys are deliberately exact: texts differing only by whitespace or
// casing are separate entries. Documented limitation, not a bug.
func TestKeysAreExact(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("hello", "fr", Result{Text: "bonjour"})
	if _, ok := c.Get("hello ", "fr"); ok {
		t.Fatalf("trailing whitespace must produce a distinct key")
	}
	if _, ok := c.Get("Hello", "fr"); ok {
		t.Fatalf("casing must produce a distinct key")
	}
	if _, ok := c.Get("hello", "de"); ok {
		t.Fatalf("different target language must produce a distinct key")
	}
}
