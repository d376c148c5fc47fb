package storage

import (
	"context"
	"errors"
	"strings"

	logx "lingobot/pkg/logx"
)

// Store is the minimal persistence API used by the router and notifier.
type Store interface {
	// GetSettings returns the chat's settings, or a zero-valued
	// ChatSettings (with the ChatID filled in) if none are stored.
	GetSettings(ctx context.Context, chatID int64) (ChatSettings, error)
	PutSettings(ctx context.Context, s ChatSettings) error

	AppendError(ctx context.Context, e ErrorEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
