// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package kvstore

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

// BadgerKV is the production PersistentKV backend. A BadgerKV opened
// read-only serves as a protected overlay: DefaultCache never writes to
// it, and BadgerDB itself refuses writes against a read-only handle.
type BadgerKV struct {
	mu       sync.RWMutex
	db       *badger.DB
	path     string
	readOnly bool
}

// NewBadgerKV constructs an unopened store. ReadOnly stores are used for the
// protected overlay; mutable stores back the writable disk tier.
func NewBadgerKV(readOnly bool) *BadgerKV {
	return &BadgerKV{readOnly: readOnly}
}

func (b *BadgerKV) Open(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return olperror.New(olperror.AlreadyOpen, "store already open at "+b.path)
	}

	opts := badger.DefaultOptions(path)
	opts.ReadOnly = b.readOnly
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if isLockError(err) {
			return olperror.Wrap(olperror.PathInUse, err, "path is locked by another process: "+path)
		}
		return olperror.Wrap(olperror.CacheIO, err, "open badger store at "+path)
	}

	b.db = db
	b.path = path
	logging.Debug().Str("path", path).Bool("read_only", b.readOnly).Msg("persistent kv store opened")
	return nil
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "LOCK") || strings.Contains(err.Error(), "lock")
}

func (b *BadgerKV) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return olperror.New(olperror.NotOpen, "store is not open")
	}
	err := b.db.Close()
	b.db = nil
	if err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "close badger store")
	}
	return nil
}

func (b *BadgerKV) handle() (*badger.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, olperror.New(olperror.NotOpen, "store is not open")
	}
	return b.db, nil
}

func (b *BadgerKV) Get(key string) ([]byte, bool, error) {
	db, err := b.handle()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, olperror.Wrap(olperror.CacheIO, err, "get "+key)
	}
	if value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

func (b *BadgerKV) Put(key string, value []byte, ttl time.Duration) error {
	if b.readOnly {
		return olperror.New(olperror.CacheIO, "store is read-only")
	}
	db, err := b.handle()
	if err != nil {
		return err
	}

	entry := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}

	if err := db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "put "+key)
	}
	return nil
}

func (b *BadgerKV) Remove(key string) error {
	if b.readOnly {
		return nil
	}
	db, err := b.handle()
	if err != nil {
		return err
	}
	if err := db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}); err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "remove "+key)
	}
	return nil
}

func (b *BadgerKV) RemoveWithPrefix(prefix string) error {
	if b.readOnly {
		return nil
	}
	db, err := b.handle()
	if err != nil {
		return err
	}

	var keys [][]byte
	if err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			keys = append(keys, key)
		}
		return nil
	}); err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "scan prefix "+prefix)
	}

	if err := db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	}); err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "remove prefix "+prefix)
	}
	return nil
}

func (b *BadgerKV) Iterate(prefix string, fn func(Entry) bool) error {
	db, err := b.handle()
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var expires time.Time
			if exp := item.ExpiresAt(); exp > 0 {
				expires = time.Unix(int64(exp), 0)
			}
			if !fn(Entry{Key: string(item.Key()), Value: val, Expires: expires}) {
				return nil
			}
		}
		return nil
	})
}

// Compact runs BadgerDB's value-log GC followed by an LSM flatten, dropping
// tombstones and unused pages so the store is ready to be reopened read-only
// as a protected overlay.
func (b *BadgerKV) Compact() error {
	db, err := b.handle()
	if err != nil {
		return err
	}

	for {
		if err := db.RunValueLogGC(0.5); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return olperror.Wrap(olperror.CacheIO, err, "compact: value log gc")
		}
	}

	if err := db.Flatten(2); err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "compact: flatten")
	}
	return nil
}

func (b *BadgerKV) SizeBytes() (uint64, error) {
	db, err := b.handle()
	if err != nil {
		return 0, err
	}
	lsm, vlog := db.Size()
	if lsm < 0 {
		lsm = 0
	}
	if vlog < 0 {
		vlog = 0
	}
	return uint64(lsm + vlog), nil
}

var _ PersistentKV = (*BadgerKV)(nil)
