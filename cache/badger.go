package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/RyanBlaney/sonido-insect/logging"
)

const keyPrefix = "prediction/"

// BadgerOptions configures the badger-backed cache.
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory, mainly for tests.
	InMemory bool

	// TTL expires entries after the given duration. Zero keeps them forever.
	TTL time.Duration
}

// Badger is a Cache backed by BadgerDB.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadger opens (or creates) the cache database.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache: directory is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(badgerLogger{logger: logging.WithFields(logging.Fields{"component": "prediction_cache"})})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	return &Badger{db: db, ttl: opts.TTL}, nil
}

// Get returns the entry stored under key.
func (b *Badger) Get(_ context.Context, key string) (*Entry, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("cache: corrupt entry %s: %w", key, err)
	}
	return &entry, nil
}

// Put stores entry under key, replacing any previous value.
func (b *Badger) Put(_ context.Context, key string, entry *Entry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), val)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Len counts the stored entries.
func (b *Badger) Len() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
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

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

var _ Cache = (*Badger)(nil)

// badgerLogger routes badger's messages into the structured logger,
// demoting its chatty info output to debug.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	l.logger.Error(fmt.Errorf(f, v...), "badger error")
}

func (l badgerLogger) Warningf(f string, v ...any) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Infof(f string, v ...any) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}

func (l badgerLogger) Debugf(string, ...any) {}
