// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package kvstore

import (
	"strings"
	"sync"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryKV is a process-local PersistentKV backed by a plain map, for tests
// and for memory-only cache configurations that never touch disk.
type MemoryKV struct {
	mu    sync.RWMutex
	clock clock.Clock
	data  map[string]memoryEntry
	open  bool
}

// NewMemoryKV builds an unopened in-memory store. A nil clk defaults to the
// system clock.
func NewMemoryKV(clk clock.Clock) *MemoryKV {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryKV{clock: clk}
}

func (m *MemoryKV) Open(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return olperror.New(olperror.AlreadyOpen, "store already open")
	}
	m.data = make(map[string]memoryEntry)
	m.open = true
	return nil
}

func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return olperror.New(olperror.NotOpen, "store is not open")
	}
	m.open = false
	m.data = nil
	return nil
}

func (m *MemoryKV) requireOpen() error {
	if !m.open {
		return olperror.New(olperror.NotOpen, "store is not open")
	}
	return nil
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.requireOpen(); err != nil {
		return nil, false, err
	}
	entry, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && !m.clock.Now().Before(entry.expires) {
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (m *MemoryKV) Put(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.clock.Now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = memoryEntry{value: stored, expires: expires}
	return nil
}

func (m *MemoryKV) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) RemoveWithPrefix(prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MemoryKV) Iterate(prefix string, fn func(Entry) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	now := m.clock.Now()
	for k, v := range m.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !v.expires.IsZero() && !now.Before(v.expires) {
			continue
		}
		if !fn(Entry{Key: k, Value: v.value, Expires: v.expires}) {
			return nil
		}
	}
	return nil
}

// Compact drops expired entries eagerly. There is no on-disk representation
// to rewrite, so this is the entirety of memory compaction.
func (m *MemoryKV) Compact() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireOpen(); err != nil {
		return err
	}
	now := m.clock.Now()
	for k, v := range m.data {
		if !v.expires.IsZero() && !now.Before(v.expires) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MemoryKV) SizeBytes() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.requireOpen(); err != nil {
		return 0, err
	}
	var total uint64
	for k, v := range m.data {
		total += uint64(len(k) + len(v.value))
	}
	return total, nil
}

var _ PersistentKV = (*MemoryKV)(nil)
