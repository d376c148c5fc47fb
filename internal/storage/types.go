package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   dependency-free file backend (json snapshot + jsonl)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChatSettings holds the per-chat knobs the pipeline reads on every
// trigger. Zero values mean "use the configured defaults".
type ChatSettings struct {
	ChatID       int64
	TargetLang   string
	RateLimit    int
	ErrorChatID  int64 // where admin alerts go; 0 = none configured
	TriggerEmoji string
	Watched      []int64 // channels where reaction triggers are honored
}

// WatchesChannel reports whether reaction triggers are honored in ch.
func (s ChatSettings) WatchesChannel(ch int64) bool {
	for _, w := range s.Watched {
		if w == ch {
			return true
		}
	}
	return false
}

// ErrorEntry is one durable error-log record.
// Detail carries truncated stack/provider detail, never shown to users.
type ErrorEntry struct {
	At      time.Time
	ChatID  int64
	Message string
	Detail  string
}
