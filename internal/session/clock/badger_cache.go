package clock

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/huddleworks/livesession/internal/session/ports"
)

// BadgerCache is the durable duration cache. Keys: "clock:<sessionID>",
// values: big-endian uint64 seconds.
type BadgerCache struct {
	db *badger.DB
}

func OpenBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open duration cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Close() error { return c.db.Close() }

func (c *BadgerCache) Put(sessionID string, seconds int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seconds))
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(sessionID), buf[:])
	})
}

func (c *BadgerCache) Get(sessionID string) (int64, bool, error) {
	var out int64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt duration value for %q", sessionID)
			}
			out = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return out, true, nil
}

func key(sessionID string) []byte {
	return []byte("clock:" + sessionID)
}

var _ ports.DurationCache = (*BadgerCache)(nil)
