package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "lingobot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.settings.json (full snapshot, rewritten on every put)
//   - <prefix>.errors.jsonl  (append-only JSON Lines)
//
// Settings volume is tiny (one record per chat), so snapshot-on-write
// stays cheap; the error log only ever appends.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	settingsPath string
	settings     map[int64]ChatSettings

	errFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	settingsPath := prefix + ".settings.json"
	errPath := prefix + ".errors.jsonl"

	settings := map[int64]ChatSettings{}
	if err := loadSettingsSnapshot(settingsPath, settings); err != nil {
		log.Warn("settings snapshot unreadable, starting empty", logx.Err(err))
	}

	ef, err := os.OpenFile(errPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		settingsPath: settingsPath,
		settings:     settings,
		errFile:      ef,
	}, nil
}

func loadSettingsSnapshot(path string, into map[int64]ChatSettings) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var list []ChatSettings
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, s := range list {
		into[s.ChatID] = s
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errFile != nil {
		err := s.errFile.Close()
		s.errFile = nil
		return err
	}
	return nil
}

func (s *fileStore) GetSettings(ctx context.Context, chatID int64) (ChatSettings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.settings[chatID]; ok {
		return cs, nil
	}
	return ChatSettings{ChatID: chatID}, nil
}

func (s *fileStore) PutSettings(ctx context.Context, cs ChatSettings) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[cs.ChatID] = cs
	return s.writeSnapshotLocked()
}

// writeSnapshotLocked rewrites the snapshot via a temp file + rename so
// a crash mid-write can't corrupt existing settings.
func (s *fileStore) writeSnapshotLocked() error {
	list := make([]ChatSettings, 0, len(s.settings))
	for _, cs := range s.settings {
		list = append(list, cs)
	}
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.settingsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.settingsPath)
}

func (s *fileStore) AppendError(ctx context.Context, e ErrorEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errFile == nil {
		return errors.New("error log closed")
	}
	return json.NewEncoder(s.errFile).Encode(e)
}
