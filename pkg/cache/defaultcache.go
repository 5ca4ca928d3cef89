// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package cache

import (
	"sync"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/kvstore"
	"github.com/geodata-platform/olp-sdk-go/pkg/metrics"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

// EvictionPolicy selects what happens when a write would exceed a tier's
// byte budget.
type EvictionPolicy int

const (
	// EvictionNone refuses writes that would exceed budget, returning
	// olperror.CacheFull.
	EvictionNone EvictionPolicy = iota
	// EvictionLeastRecentlyUsed evicts unprotected entries, oldest first,
	// until the new entry fits.
	EvictionLeastRecentlyUsed
)

// ParseEvictionPolicy parses the config string form ("none" / "lru").
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch s {
	case "none":
		return EvictionNone, nil
	case "lru":
		return EvictionLeastRecentlyUsed, nil
	default:
		return 0, olperror.Newf(olperror.InvalidArgument, "unknown eviction policy %q", s)
	}
}

// Config configures one DefaultCache instance. Every field is optional: a
// zero MaxMemoryBytes disables the memory tier, a nil mutable store
// (passed to New) disables persistence, and a nil protected store
// disables the read-only overlay.
type Config struct {
	MaxMemoryBytes          uint64
	MaxDiskBytes            uint64
	MaxValueSize            uint64
	MutablePath             string
	ProtectedPath           string
	Eviction                EvictionPolicy
	PropagateAllCacheErrors bool
}

// diskEnvelope is the on-disk wire representation for both the mutable and
// protected tiers. Wrapping the caller's value lets DefaultCache enforce
// expiry itself, independent of whether the underlying PersistentKV also
// expires the raw entry.
type diskEnvelope struct {
	Value           []byte `json:"value"`
	ExpiresUnixNano int64  `json:"expires_unix_nano,omitempty"`
}

// DefaultCache is a two-tier, protection-aware cache: an in-process LRU
// backed by an optional persistent mutable store and an optional
// read-only protected overlay.
type DefaultCache struct {
	cfg   Config
	clock clock.Clock

	memory *memoryTier

	diskMu        sync.RWMutex
	mutable       kvstore.PersistentKV
	mutableOpen   bool
	mutableOrder  *lruOrder
	protectedTTL  map[string]time.Duration
	protected     kvstore.PersistentKV
	protectedOpen bool
}

// New constructs a DefaultCache. mutable and protected may be nil to
// disable the corresponding tier entirely; when non-nil they are opened
// and closed by Open/Close but not constructed here, so callers choose the
// PersistentKV backend (badger-backed or in-memory).
func New(cfg Config, mutable, protected kvstore.PersistentKV, clk clock.Clock) *DefaultCache {
	if clk == nil {
		clk = clock.System{}
	}
	return &DefaultCache{
		cfg:          cfg,
		clock:        clk,
		memory:       newMemoryTier(cfg.MaxMemoryBytes, clk),
		mutable:      mutable,
		mutableOrder: newLRUOrder(cfg.MaxDiskBytes),
		protectedTTL: make(map[string]time.Duration),
		protected:    protected,
	}
}

// Open opens the configured persistent tiers and rebuilds the mutable
// tier's eviction bookkeeping from what is already on disk.
func (c *DefaultCache) Open() error {
	if c.mutable != nil {
		if err := c.mutable.Open(c.cfg.MutablePath); err != nil {
			return err
		}
		c.mutableOpen = true
		if err := c.mutable.Iterate("", func(e kvstore.Entry) bool {
			c.mutableOrder.add(e.Key, uint64(len(e.Key)+len(e.Value)))
			return true
		}); err != nil {
			return err
		}
	}
	if c.protected != nil {
		if err := c.protected.Open(c.cfg.ProtectedPath); err != nil {
			return err
		}
		c.protectedOpen = true
	}
	return nil
}

func (c *DefaultCache) Close() error {
	var firstErr error
	if c.mutableOpen {
		if err := c.mutable.Close(); err != nil {
			firstErr = err
		}
		c.mutableOpen = false
	}
	if c.protectedOpen {
		if err := c.protected.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.protectedOpen = false
	}
	return firstErr
}

// Get looks up key, trying memory, then the mutable disk tier, then the
// protected overlay, in that order. Mutable-layer hits are promoted into
// memory; protected-layer hits are not.
func (c *DefaultCache) Get(key string) ([]byte, bool, error) {
	if v, ok := c.memory.get(key); ok {
		metrics.RecordCacheHit("memory")
		return v, true, nil
	}
	metrics.RecordCacheMiss("memory")

	if c.mutableOpen {
		v, expires, ok, err := c.getDisk(c.mutable, key, true)
		if err != nil {
			return nil, false, err
		}
		if ok {
			metrics.RecordCacheHit("mutable")
			if c.cfg.MaxValueSize == 0 || uint64(len(v)) <= c.cfg.MaxValueSize {
				var ttl time.Duration
				if expires > 0 {
					ttl = time.Duration(expires - c.clock.Now().UnixNano())
				}
				evicted, _, _ := c.memory.put(key, v, ttl, false, c.cfg.Eviction)
				metrics.CacheEvictions.Add(float64(len(evicted)))
			}
			return v, true, nil
		}
		metrics.RecordCacheMiss("mutable")
	}

	if c.protectedOpen {
		v, _, ok, err := c.getDisk(c.protected, key, false)
		if err != nil {
			return nil, false, err
		}
		if ok {
			metrics.RecordCacheHit("protected")
			return v, true, nil
		}
		metrics.RecordCacheMiss("protected")
	}

	return nil, false, nil
}

// getDisk reads and decodes key from store, returning the value and its
// absolute expiry in Unix nanoseconds (0 meaning none).
func (c *DefaultCache) getDisk(store kvstore.PersistentKV, key string, enforceExpiry bool) ([]byte, int64, bool, error) {
	c.diskMu.RLock()
	raw, ok, err := store.Get(key)
	c.diskMu.RUnlock()
	if err != nil {
		return nil, 0, false, err
	}
	if !ok {
		return nil, 0, false, nil
	}

	var env diskEnvelope
	if err := gojson.Unmarshal(raw, &env); err != nil {
		return nil, 0, false, olperror.Wrap(olperror.CacheIO, err, "decode cache entry "+key)
	}
	if enforceExpiry && env.ExpiresUnixNano > 0 && c.clock.Now().UnixNano() >= env.ExpiresUnixNano {
		return nil, 0, false, nil
	}
	return env.Value, env.ExpiresUnixNano, true, nil
}

// Put writes value under key with the given ttl (zero meaning no expiry).
// It always updates the memory tier (if enabled) and, if a mutable layer is
// configured, persists there too; with no mutable layer this is a
// memory-only write that still reports success, except under
// EvictionNone, where a write that would exceed MaxMemoryBytes is
// refused with CacheFull since there's no disk tier left to catch it. An
// entry larger than MaxValueSize is rejected by the LRU tier but is
// still eligible for the mutable disk tier.
func (c *DefaultCache) Put(key string, value []byte, ttl time.Duration) error {
	if c.cfg.MaxValueSize == 0 || uint64(len(value)) <= c.cfg.MaxValueSize {
		evicted, _, refused := c.memory.put(key, value, ttl, false, c.cfg.Eviction)
		metrics.CacheEvictions.Add(float64(len(evicted)))
		if refused && !c.mutableOpen {
			return c.cacheFullOrLog("memory tier full, refusing put for " + key)
		}
	} else {
		logging.Debug().Str("key", key).Int("size", len(value)).Msg("value exceeds max_value_size, skipping memory tier")
	}

	if !c.mutableOpen {
		return nil
	}

	var expires int64
	if ttl > 0 {
		expires = c.clock.Now().Add(ttl).UnixNano()
	}
	envBytes, err := gojson.Marshal(diskEnvelope{Value: value, ExpiresUnixNano: expires})
	if err != nil {
		return olperror.Wrap(olperror.CacheIO, err, "encode cache entry "+key)
	}

	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	weight := uint64(len(key) + len(envBytes))
	switch c.cfg.Eviction {
	case EvictionNone:
		existing := uint64(0)
		if c.mutableOrder.has(key) {
			if el, ok := c.mutableOrder.index[key]; ok {
				existing = el.Value.(*lruNode).weight
			}
		}
		if c.mutableOrder.maxBytes > 0 && c.mutableOrder.totalBytes-existing+weight > c.mutableOrder.maxBytes {
			return c.cacheFullOrLog("disk tier full, refusing put for " + key)
		}
	case EvictionLeastRecentlyUsed:
		evicted, ok := c.mutableOrder.evictFor(weight)
		for _, k := range evicted {
			if err := c.mutable.Remove(k); err != nil {
				logging.Warn().Err(err).Str("key", k).Msg("failed to evict disk cache entry")
			}
			c.mutableOrder.remove(k)
			metrics.CacheEvictions.Inc()
		}
		if !ok {
			logging.Debug().Str("key", key).Msg("disk cache entry exceeds budget even after eviction, not stored")
			return nil
		}
	}

	if err := c.mutable.Put(key, envBytes, ttl); err != nil {
		return c.cacheIOOrLog(err, "put "+key)
	}
	c.mutableOrder.add(key, weight)
	return nil
}

func (c *DefaultCache) cacheFullOrLog(msg string) error {
	err := olperror.New(olperror.CacheFull, msg)
	if c.cfg.PropagateAllCacheErrors {
		return err
	}
	logging.Warn().Str("reason", msg).Msg("cache write refused, continuing uncached")
	return nil
}

func (c *DefaultCache) cacheIOOrLog(cause error, action string) error {
	err := olperror.Wrap(olperror.CacheIO, cause, action)
	if c.cfg.PropagateAllCacheErrors {
		return err
	}
	logging.Warn().Err(err).Msg("cache write failed, continuing as if cold")
	return nil
}

// Remove deletes key from every tier where it is not protected. Unknown
// keys and protected keys both report success.
func (c *DefaultCache) Remove(key string) error {
	c.memory.remove(key)

	if !c.mutableOpen {
		return nil
	}

	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	if el, ok := c.mutableOrder.index[key]; ok && el.Value.(*lruNode).protected {
		return nil
	}
	if err := c.mutable.Remove(key); err != nil {
		return c.cacheIOOrLog(err, "remove "+key)
	}
	c.mutableOrder.remove(key)
	return nil
}

// RemoveWithPrefix deletes every key with the given prefix from the memory
// and mutable tiers, skipping protected entries. The protected overlay is
// never written to, so it is left untouched.
func (c *DefaultCache) RemoveWithPrefix(prefix string) error {
	c.memory.removeWithPrefix(prefix)

	if !c.mutableOpen {
		return nil
	}

	c.diskMu.Lock()
	defer c.diskMu.Unlock()

	removed := c.mutableOrder.removeWithPrefix(prefix)
	for _, key := range removed {
		if err := c.mutable.Remove(key); err != nil {
			return c.cacheIOOrLog(err, "remove "+key)
		}
	}
	return nil
}

// Protect moves the given keys out of eviction consideration and clears
// their expiry in the memory tier and the mutable tier's bookkeeping.
func (c *DefaultCache) Protect(keys []string) error {
	for _, key := range keys {
		c.memory.protect(key)

		if !c.mutableOpen {
			continue
		}
		c.diskMu.Lock()
		if c.mutableOrder.protect(key) {
			if raw, ok, err := c.mutable.Get(key); err == nil && ok {
				var env diskEnvelope
				if err := gojson.Unmarshal(raw, &env); err == nil {
					if env.ExpiresUnixNano > 0 {
						c.protectedTTL[key] = time.Duration(env.ExpiresUnixNano-c.clock.Now().UnixNano()) * time.Nanosecond
					}
					env.ExpiresUnixNano = 0
					if rewritten, err := gojson.Marshal(env); err == nil {
						c.mutable.Put(key, rewritten, 0)
					}
				}
			}
		}
		c.diskMu.Unlock()
	}
	return nil
}

// Release reinserts the given keys at the most-recently-used end and
// restores a freshly computed expiry, using the ttl recorded at the time
// of the matching Protect call.
func (c *DefaultCache) Release(keys []string) error {
	for _, key := range keys {
		c.memory.release(key)

		if !c.mutableOpen {
			continue
		}
		c.diskMu.Lock()
		if c.mutableOrder.release(key) {
			ttl := c.protectedTTL[key]
			delete(c.protectedTTL, key)
			if ttl > 0 {
				if raw, ok, err := c.mutable.Get(key); err == nil && ok {
					var env diskEnvelope
					if err := gojson.Unmarshal(raw, &env); err == nil {
						env.ExpiresUnixNano = c.clock.Now().Add(ttl).UnixNano()
						if rewritten, err := gojson.Marshal(env); err == nil {
							c.mutable.Put(key, rewritten, ttl)
						}
					}
				}
			}
		}
		c.diskMu.Unlock()
	}
	return nil
}

// Compact rewrites the mutable store, dropping tombstones and unused
// pages, in preparation for promotion to a protected overlay.
func (c *DefaultCache) Compact() error {
	if !c.mutableOpen {
		return olperror.New(olperror.NotOpen, "mutable layer is not open")
	}
	return c.mutable.Compact()
}

func (c *DefaultCache) MemoryBytes() uint64 {
	n := c.memory.sizeBytes()
	metrics.CacheBytes.WithLabelValues("memory").Set(float64(n))
	return n
}

func (c *DefaultCache) DiskBytes() (uint64, error) {
	if !c.mutableOpen {
		return 0, nil
	}
	n, err := c.mutable.SizeBytes()
	if err == nil {
		metrics.CacheBytes.WithLabelValues("mutable").Set(float64(n))
	}
	return n, err
}
