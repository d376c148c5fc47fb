// Package cache holds recent translation results keyed by exact source
// text and target language, so repeated triggers for the same message
// don't cost another provider call.
package cache

import (
	"sync"
	"time"
)

const DefaultTTL = 5 * time.Minute

// Result is the cached value: the translated text plus the source
// language the provider detected.
type Result struct {
	Text         string
	DetectedLang string
}

type key struct {
	text string
	lang string
}

type entry struct {
	res Result
	at  time.Time
}

// Cache is a TTL-bounded in-memory store. Expiry is lazy: a Get past the
// TTL removes the entry and reports a miss, so correctness does not
// depend on Cleanup ever running.
//
// Keys are exact. "hello " and "hello" are distinct entries; the trigger
// text is cached as-is, without case or whitespace normalization.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[key]entry

	now func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: map[key]entry{},
		now:     time.Now,
	}
}

// Get returns the stored result for (text, lang) if it is younger than
// the TTL. An expired entry is deleted on the spot.
func (c *Cache) Get(text, lang string) (Result, bool) {
	k := key{text: text, lang: lang}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.at) >= c.ttl {
		delete(c.entries, k)
		return Result{}, false
	}
	return e.res, true
}

// Set stores a result, unconditionally replacing any prior entry for the
// same key with a fresh timestamp.
func (c *Cache) Set(text, lang string, res Result) {
	k := key{text: text, lang: lang}

	c.mu.Lock()
	c.entries[k] = entry{res: res, at: c.now()}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = map[key]entry{}
	c.mu.Unlock()
}

// Cleanup sweeps out entries past the TTL and returns how many were
// removed. It only bounds memory; Get already expires lazily.
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the current entry count (expired entries included until
// they are observed or swept).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
