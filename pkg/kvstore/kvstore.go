// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package kvstore defines the PersistentKV collaborator that DefaultCache's
// disk tiers are built on: a BadgerDB-backed store for production use and
// an in-memory store for tests and for configurations that run
// memory-only.
package kvstore

import "time"

// Entry is a single stored value plus its metadata, returned by Iterate.
type Entry struct {
	Key     string
	Value   []byte
	Expires time.Time // zero value means no expiry
}

// PersistentKV is the on-disk key/value engine contract. Ttl of zero means
// "never expires". Implementations must be crash-safe to the granularity
// of a successful Put.
type PersistentKV interface {
	// Open opens (or creates) the store at path. Opening an empty directory
	// succeeds by creating an empty store; opening a path already locked by
	// another process fails with olperror.PathInUse.
	Open(path string) error
	Close() error

	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte, ttl time.Duration) error
	Remove(key string) error
	RemoveWithPrefix(prefix string) error

	// Iterate calls fn for every stored key with the given prefix, in
	// unspecified order, stopping early if fn returns false.
	Iterate(prefix string, fn func(Entry) bool) error

	// Compact rewrites the store dropping tombstones and unused pages, in
	// preparation for promotion to a protected overlay.
	Compact() error

	SizeBytes() (uint64, error)
}
