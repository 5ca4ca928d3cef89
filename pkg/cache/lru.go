// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package cache implements a two-tier DefaultCache: a bounded in-memory
// LRU tier in front of a mutable on-disk tier, with an optional read-only
// protected overlay. The ordering structure here is the
// doubly-linked-list-plus-map shape used throughout this codebase's other
// LRU caches, generalized to track byte weight and a protected flag instead
// of a single timestamp value.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
)

type lruNode struct {
	key       string
	weight    uint64
	protected bool
}

// lruOrder tracks recency and protection state for a set of keys sharing a
// byte budget. It owns no values itself: the memory tier pairs it with a
// value map, the mutable disk tier pairs it with a PersistentKV.
//
// Callers are responsible for their own locking; lruOrder is not
// thread-safe on its own, matching how memoryTier and the disk tier each
// hold a single mutex across an lruOrder plus their value storage.
type lruOrder struct {
	ll         *list.List
	index      map[string]*list.Element
	totalBytes uint64
	maxBytes   uint64
}

func newLRUOrder(maxBytes uint64) *lruOrder {
	return &lruOrder{ll: list.New(), index: make(map[string]*list.Element), maxBytes: maxBytes}
}

func (o *lruOrder) touch(key string) {
	if el, ok := o.index[key]; ok {
		o.ll.MoveToFront(el)
	}
}

func (o *lruOrder) has(key string) bool {
	_, ok := o.index[key]
	return ok
}

// add inserts or updates key at the front of the list with the given
// weight. It does not evict; callers call evictFor first.
func (o *lruOrder) add(key string, weight uint64) {
	if el, ok := o.index[key]; ok {
		n := el.Value.(*lruNode)
		o.totalBytes -= n.weight
		n.weight = weight
		o.totalBytes += weight
		o.ll.MoveToFront(el)
		return
	}
	n := &lruNode{key: key, weight: weight}
	el := o.ll.PushFront(n)
	o.index[key] = el
	o.totalBytes += weight
}

func (o *lruOrder) remove(key string) {
	if el, ok := o.index[key]; ok {
		n := el.Value.(*lruNode)
		o.totalBytes -= n.weight
		o.ll.Remove(el)
		delete(o.index, key)
	}
}

// removeWithPrefix removes every unprotected key with the given prefix and
// returns the keys it removed. Protected keys survive.
func (o *lruOrder) removeWithPrefix(prefix string) []string {
	var removed []string
	for el := o.ll.Front(); el != nil; {
		next := el.Next()
		n := el.Value.(*lruNode)
		if strings.HasPrefix(n.key, prefix) && !n.protected {
			removed = append(removed, n.key)
			o.totalBytes -= n.weight
			o.ll.Remove(el)
			delete(o.index, n.key)
		}
		el = next
	}
	return removed
}

// protect pulls key out of the eviction list's consideration and marks it
// protected. It stays in the index so touch/remove/has still work, but
// evictFor skips it.
func (o *lruOrder) protect(key string) bool {
	el, ok := o.index[key]
	if !ok {
		return false
	}
	el.Value.(*lruNode).protected = true
	return true
}

// release marks key eligible for eviction again and moves it to the
// most-recently-used end.
func (o *lruOrder) release(key string) bool {
	el, ok := o.index[key]
	if !ok {
		return false
	}
	n := el.Value.(*lruNode)
	n.protected = false
	o.ll.MoveToFront(el)
	return true
}

// evictFor reports which unprotected keys (oldest first) must be evicted to
// fit an incoming entry of the given weight, and whether doing so succeeds.
// ok is false when weight alone exceeds the budget, or when evicting every
// unprotected entry still would not make room; in the latter case evicted
// still lists everything that was identified as evictable.
func (o *lruOrder) evictFor(weight uint64) (evicted []string, ok bool) {
	if o.maxBytes == 0 {
		return nil, true
	}
	if weight > o.maxBytes {
		return nil, false
	}
	projected := o.totalBytes + weight
	for el := o.ll.Back(); projected > o.maxBytes && el != nil; {
		prev := el.Prev()
		n := el.Value.(*lruNode)
		if !n.protected {
			evicted = append(evicted, n.key)
			projected -= n.weight
		}
		el = prev
	}
	return evicted, projected <= o.maxBytes
}

func (o *lruOrder) len() int {
	return o.ll.Len()
}

type memoryEntryValue struct {
	value     []byte
	expiresAt time.Time // zero means protected / no expiry
	ttl       time.Duration
}

// memoryTier is the in-process LRU tier. A zero-byte budget disables it
// entirely: every operation is a no-op miss. Each entry carries its own
// TTL (derived by the caller, e.g. from a response's max-age), not a
// single cache-wide one.
type memoryTier struct {
	mu      sync.Mutex
	enabled bool
	order   *lruOrder
	values  map[string]*memoryEntryValue
	clock   clock.Clock
}

func newMemoryTier(maxBytes uint64, clk clock.Clock) *memoryTier {
	return &memoryTier{
		enabled: maxBytes > 0,
		order:   newLRUOrder(maxBytes),
		values:  make(map[string]*memoryEntryValue),
		clock:   clk,
	}
}

func (t *memoryTier) get(key string) ([]byte, bool) {
	if !t.enabled {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.values[key]
	if !ok {
		return nil, false
	}
	if !v.expiresAt.IsZero() && !t.clock.Now().Before(v.expiresAt) {
		t.removeLocked(key)
		return nil, false
	}
	t.order.touch(key)
	out := make([]byte, len(v.value))
	copy(out, v.value)
	return out, true
}

// put stores value under key honoring policy. evicted lists any keys
// dropped to make room. refused reports a CacheFull condition under
// EvictionNone. stored is false when, under LRU policy, the incoming entry
// itself could not be made to fit: the call still succeeds, it simply
// leaves the key absent.
func (t *memoryTier) put(key string, value []byte, ttl time.Duration, protected bool, policy EvictionPolicy) (evicted []string, stored bool, refused bool) {
	if !t.enabled {
		return nil, false, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	weight := uint64(len(key) + len(value))

	switch policy {
	case EvictionNone:
		existingWeight := uint64(0)
		if existing, ok := t.values[key]; ok {
			existingWeight = uint64(len(key) + len(existing.value))
		}
		if t.order.maxBytes > 0 && t.order.totalBytes-existingWeight+weight > t.order.maxBytes {
			return nil, false, true
		}
	case EvictionLeastRecentlyUsed:
		ev, ok := t.order.evictFor(weight)
		for _, k := range ev {
			t.removeLocked(k)
		}
		evicted = ev
		if !ok {
			return evicted, false, false
		}
	}

	var expiresAt time.Time
	if !protected && ttl > 0 {
		expiresAt = t.clock.Now().Add(ttl)
	}
	t.values[key] = &memoryEntryValue{value: append([]byte(nil), value...), expiresAt: expiresAt, ttl: ttl}
	t.order.add(key, weight)
	if protected {
		t.order.protect(key)
	}
	return evicted, true, false
}

func (t *memoryTier) removeLocked(key string) {
	delete(t.values, key)
	t.order.remove(key)
}

// remove drops key unless it is protected; protected entries survive.
func (t *memoryTier) remove(key string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.order.index[key]; ok && el.Value.(*lruNode).protected {
		return
	}
	t.removeLocked(key)
}

func (t *memoryTier) removeWithPrefix(prefix string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range t.order.removeWithPrefix(prefix) {
		delete(t.values, k)
	}
}

func (t *memoryTier) protect(key string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.order.protect(key) {
		if v, ok := t.values[key]; ok {
			v.expiresAt = time.Time{}
		}
	}
}

func (t *memoryTier) release(key string) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.order.release(key) {
		if v, ok := t.values[key]; ok && v.ttl > 0 {
			v.expiresAt = t.clock.Now().Add(v.ttl)
		}
	}
}

func (t *memoryTier) sizeBytes() uint64 {
	if !t.enabled {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.totalBytes
}
