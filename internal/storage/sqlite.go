package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "lingobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSettings(ctx context.Context, chatID int64) (ChatSettings, error) {
	out := ChatSettings{ChatID: chatID}
	if s == nil || s.db == nil {
		return out, ErrDisabled
	}

	var watched string
	err := s.db.QueryRowContext(ctx,
		`SELECT target_lang, rate_limit, error_chat_id, trigger_emoji, watched
		 FROM chat_settings WHERE chat_id = ?`, chatID,
	).Scan(&out.TargetLang, &out.RateLimit, &out.ErrorChatID, &out.TriggerEmoji, &watched)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if watched != "" {
		if uerr := json.Unmarshal([]byte(watched), &out.Watched); uerr != nil {
			s.log.Warn("bad watched list in settings row", logx.Int64("chat", chatID), logx.Err(uerr))
			out.Watched = nil
		}
	}
	return out, nil
}

func (s *sqliteStore) PutSettings(ctx context.Context, cs ChatSettings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	watched, err := json.Marshal(cs.Watched)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_settings(chat_id, target_lang, rate_limit, error_chat_id, trigger_emoji, watched)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   target_lang=excluded.target_lang,
		   rate_limit=excluded.rate_limit,
		   error_chat_id=excluded.error_chat_id,
		   trigger_emoji=excluded.trigger_emoji,
		   watched=excluded.watched`,
		cs.ChatID, cs.TargetLang, cs.RateLimit, cs.ErrorChatID, cs.TriggerEmoji, string(watched),
	)
	return err
}

func (s *sqliteStore) AppendError(ctx context.Context, e ErrorEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log(at, chat_id, message, detail) VALUES(?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ChatID, e.Message, nullStr(e.Detail),
	)
	return err
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
