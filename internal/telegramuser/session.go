// Package telegramuser implements the Telegram User Client (component C): a
// persistent phone-authenticated gotd/td session that performs the actions
// the bot account cannot (group creation, folder placement). It registers
// no update handler, so user-originated sends/edits/deletes are not observed.
package telegramuser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	tdsession "github.com/gotd/td/session"
)

// FileSessionStorage persists the gotd session blob at a single path,
// adapted from KurtSkinny-telegram-userbot's FileStorage: same atomic
// write-then-rename discipline, but without that type's connection-manager
// notification hook, since this bridge's reconnect loop (reconnect.go)
// polls the client directly rather than subscribing to session events.
type FileSessionStorage struct {
	Path string

	mu sync.Mutex
}

var _ tdsession.Storage = (*FileSessionStorage)(nil)

// LoadSession reads the session blob from disk.
func (f *FileSessionStorage) LoadSession(_ context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return data, nil
}

// StoreSession atomically writes the session blob to disk: write to a
// sibling temp file, then rename over the target, so a crash mid-write
// never leaves a truncated session file behind.
func (f *FileSessionStorage) StoreSession(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tg_session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp session file: %w", err)
	}
	return nil
}
