// SPDX-License-Identifier: MIT
//
// Package cache persists extracted feature vectors keyed by content hash so
// repeated runs over the same files skip the DSP pipeline.
package cache

import (
	"errors"
	"fmt"
	"time"

	"genre/internal/features"
	applog "genre/internal/log"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

var logger = applog.For("Cache")

const (
	keyPrefix = "features/"
	// entryVersion changes whenever the stored layout changes.
	entryVersion = 1
)

// Options configures a FeatureCache.
type Options struct {
	Dir      string        // Data directory; required unless InMemory.
	InMemory bool          // Keep everything in memory.
	TTL      time.Duration // Entry lifetime; 0 keeps entries forever.
}

// FeatureCache is a features.Cache backed by BadgerDB.
type FeatureCache struct {
	db  *badger.DB
	ttl time.Duration
}

type entry struct {
	Version  int       `msgpack:"v"`
	Features []float64 `msgpack:"f"`
	Stored   time.Time `msgpack:"t"`
}

// Open opens or creates the cache.
func Open(opts Options) (*FeatureCache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache directory is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature cache: %w", err)
	}
	if opts.InMemory {
		logger.Debugf("Opened in-memory feature cache")
	} else {
		logger.Debugf("Opened feature cache at %s", opts.Dir)
	}
	return &FeatureCache{db: db, ttl: opts.TTL}, nil
}

// Get returns the cached vector for key.
func (c *FeatureCache) Get(key string) (features.Vector, bool, error) {
	var v features.Vector
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}

	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return v, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	if e.Version != entryVersion || len(e.Features) != features.Count {
		// Stale layout; treat as a miss so it is overwritten.
		return v, false, nil
	}
	copy(v[:], e.Features)
	return v, true, nil
}

// Put stores v under key.
func (c *FeatureCache) Put(key string, v features.Vector) error {
	raw, err := msgpack.Marshal(entry{Version: entryVersion, Features: v.Slice(), Stored: time.Now()})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), raw)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Len counts the cached vectors.
func (c *FeatureCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Clear removes every cached vector.
func (c *FeatureCache) Clear() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

// Close flushes and closes the database.
func (c *FeatureCache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's output through the component logger. Badger
// is chatty at info level, so info is demoted to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any)   { logger.Errorf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...any) { logger.Warningf("badger: "+f, v...) }
func (badgerLogger) Infof(f string, v ...any)    { logger.Debugf("badger: "+f, v...) }
func (badgerLogger) Debugf(f string, v ...any)   { logger.Debugf("badger: "+f, v...) }

var _ features.Cache = (*FeatureCache)(nil)
var _ badger.Logger = badgerLogger{}
