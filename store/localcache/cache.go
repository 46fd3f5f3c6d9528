// Package localcache implements SPEC_FULL.md's local checkpoint cache: an
// optional on-disk mirror of each channel's last persisted Accounting
// record, backed directly by github.com/syndtr/goleveldb the way the
// teacher's tosdb/leveldb package wraps it, so a restarted worker can skip
// one sentry round trip before its first tick. The cache is advisory —
// sentry state is always authoritative, and Refresh only ever copies
// sentry state into the cache, never the reverse.
package localcache

import (
	"encoding/json"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/outpace-network/validatorworker/outpace"
)

// Cache is a goleveldb-backed store of the last known Accounting envelope
// per channel, keyed by channel id.
type Cache struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a leveldb database at path.
func Open(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying leveldb handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached Accounting envelope for channelID, or nil if
// there is no cache entry.
func (c *Cache) Get(channelID string) (*outpace.Envelope, error) {
	raw, err := c.db.Get([]byte(channelID), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var env outpace.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Refresh overwrites the cache entry for channelID with env, the sentry's
// authoritative latest Accounting record. It is always safe to call after
// any successful producer tick; Refresh never reads before writing, so
// concurrent refreshes for different channels never block each other
// beyond goleveldb's own internal locking.
func (c *Cache) Refresh(channelID string, env outpace.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(channelID), raw, nil)
}
