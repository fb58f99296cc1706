// Package store persists group transcripts and knowledge documents.
//
// The package keeps the teacherless single-process shape: one process, one
// open backend, package-level functions. Pebble is the default backend;
// redis serves deployments that already run one.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"groupchat/pkg/models"
)

// Backend is the minimal KV surface the history and knowledge layers need.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
	Delete(key string) error
	// Scan returns key/value pairs whose keys start with prefix.
	Scan(prefix string) (map[string][]byte, error)
	Close() error
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

var backend Backend

// Open initializes the package with a backend. It is called once at startup.
func Open(b Backend) {
	backend = b
}

// Close closes the active backend.
func Close() error {
	if backend == nil {
		return nil
	}
	err := backend.Close()
	backend = nil
	return err
}

// Ready reports whether a backend is open.
func Ready() bool { return backend != nil }

func historyKey(groupID string) string { return "chat_history:" + groupID }

// SaveHistory replaces the stored transcript for a group.
func SaveHistory(groupID string, msgs []models.StoredMessage) error {
	if backend == nil {
		return errors.New("store: not open")
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return backend.Set(historyKey(groupID), b)
}

// GetHistory loads the stored transcript for a group. A missing key is
// an empty transcript, not an error.
func GetHistory(groupID string) ([]models.StoredMessage, error) {
	if backend == nil {
		return nil, errors.New("store: not open")
	}
	b, err := backend.Get(historyKey(groupID))
	if errors.Is(err, ErrNotFound) {
		return []models.StoredMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []models.StoredMessage
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return msgs, nil
}

// ClearHistory deletes the stored transcript for a group.
func ClearHistory(groupID string) error {
	if backend == nil {
		return errors.New("store: not open")
	}
	return backend.Delete(historyKey(groupID))
}

func kbKey(base, id string) string { return fmt.Sprintf("kb:%s:%s", base, id) }

// PutDoc stores one knowledge document under a knowledge base name.
func PutDoc(base, id, text string) error {
	if backend == nil {
		return errors.New("store: not open")
	}
	return backend.Set(kbKey(base, id), []byte(text))
}

// ListDocs returns all documents of a knowledge base.
func ListDocs(base string) ([]string, error) {
	if backend == nil {
		return nil, errors.New("store: not open")
	}
	kvs, err := backend.Scan("kb:" + base + ":")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(kvs))
	for _, v := range kvs {
		out = append(out, string(v))
	}
	return out, nil
}
