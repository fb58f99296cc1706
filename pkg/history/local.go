// Package history moves transcripts between the session, a local file
// cache and the server's history store.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"groupchat/pkg/models"
)

// Local caches transcripts as one JSON file per group. It keeps the chat
// usable when the server is unreachable.
type Local struct {
	dir string
}

// NewLocal creates the cache directory if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("history: empty cache dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(groupID string) string {
	return filepath.Join(l.dir, groupID+".json")
}

// Save writes the transcript for a group.
func (l *Local) Save(groupID string, msgs []models.StoredMessage) error {
	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	tmp := l.path(groupID) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path(groupID))
}

// Load reads the cached transcript and its modification time. A missing
// cache is an empty transcript with a zero time.
func (l *Local) Load(groupID string) ([]models.StoredMessage, time.Time, error) {
	fi, err := os.Stat(l.path(groupID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	b, err := os.ReadFile(l.path(groupID))
	if err != nil {
		return nil, time.Time{}, err
	}
	var msgs []models.StoredMessage
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, time.Time{}, fmt.Errorf("corrupt cache for %s: %w", groupID, err)
	}
	return msgs, fi.ModTime(), nil
}

// Clear removes the cached transcript.
func (l *Local) Clear(groupID string) error {
	err := os.Remove(l.path(groupID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
