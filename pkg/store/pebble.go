package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"groupchat/pkg/logger"
)

// Pebble is the default on-disk backend.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (creating if needed) a pebble database at path.
func OpenPebble(path string) (*Pebble, error) {
	if path == "" {
		return nil, errors.New("pebble: empty path")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	logger.Info("store_open", "backend", "pebble", "path", path)
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

func (p *Pebble) Set(key string, val []byte) error {
	return p.db.Set([]byte(key), val, pebble.Sync)
}

func (p *Pebble) Delete(key string) error {
	return p.db.Delete([]byte(key), pebble.Sync)
}

func (p *Pebble) Scan(prefix string) (map[string][]byte, error) {
	lo := []byte(prefix)
	hi := upperBound(lo)
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	out := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		out[string(iter.Key())] = append([]byte(nil), iter.Value()...)
	}
	return out, iter.Error()
}

func (p *Pebble) Close() error {
	logger.Info("store_close", "backend", "pebble")
	return p.db.Close()
}

// upperBound returns the smallest key greater than every key with the
// given prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
