// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package kvstore

import (
	"testing"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

func TestBadgerKVPutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if err := kv.Put("a", []byte("1"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	val, ok, err := kv.Get("a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(val) != "1" {
		t.Fatalf("expected %q, got %q", "1", val)
	}
}

func TestBadgerKVGetMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	_, ok, err := kv.Get("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}

func TestBadgerKVTTLExpiry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if err := kv.Put("short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	_, ok, err := kv.Get("short")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to be gone")
	}
}

func TestBadgerKVRemoveWithPrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	kv.Put("catalog/a", []byte("1"), 0)
	kv.Put("catalog/b", []byte("2"), 0)
	kv.Put("other/a", []byte("3"), 0)

	if err := kv.RemoveWithPrefix("catalog/"); err != nil {
		t.Fatalf("remove prefix: %v", err)
	}

	if _, ok, _ := kv.Get("catalog/a"); ok {
		t.Fatalf("expected catalog/a removed")
	}
	if _, ok, _ := kv.Get("catalog/b"); ok {
		t.Fatalf("expected catalog/b removed")
	}
	if _, ok, _ := kv.Get("other/a"); !ok {
		t.Fatalf("expected other/a to survive")
	}
}

func TestBadgerKVIterate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	kv.Put("p/1", []byte("a"), 0)
	kv.Put("p/2", []byte("b"), 0)
	kv.Put("q/1", []byte("c"), 0)

	seen := map[string]bool{}
	err := kv.Iterate("p/", func(e Entry) bool {
		seen[e.Key] = true
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 2 || !seen["p/1"] || !seen["p/2"] {
		t.Fatalf("unexpected iterate result: %v", seen)
	}
}

func TestBadgerKVReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed := NewBadgerKV(false)
	if err := seed.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	seed.Put("k", []byte("v"), 0)
	if err := seed.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ro := NewBadgerKV(true)
	if err := ro.Open(dir); err != nil {
		t.Fatalf("reopen read-only: %v", err)
	}
	defer ro.Close()

	val, ok, err := ro.Get("k")
	if err != nil || !ok || string(val) != "v" {
		t.Fatalf("expected to read seeded value, got ok=%v err=%v", ok, err)
	}

	err = ro.Put("k2", []byte("v2"), 0)
	if err == nil {
		t.Fatalf("expected write against read-only store to fail")
	}
	if olperror.KindOf(err) != olperror.CacheIO {
		t.Fatalf("expected CacheIO kind, got %v", olperror.KindOf(err))
	}
}

func TestBadgerKVDoubleOpenFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kv := NewBadgerKV(false)
	if err := kv.Open(dir); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	err := kv.Open(dir)
	if err == nil {
		t.Fatalf("expected second open to fail")
	}
	if olperror.KindOf(err) != olperror.AlreadyOpen {
		t.Fatalf("expected AlreadyOpen, got %v", olperror.KindOf(err))
	}
}

func TestBadgerKVOperationsBeforeOpenFail(t *testing.T) {
	t.Parallel()

	kv := NewBadgerKV(false)
	if _, _, err := kv.Get("x"); olperror.KindOf(err) != olperror.NotOpen {
		t.Fatalf("expected NotOpen, got %v", err)
	}
	if err := kv.Close(); olperror.KindOf(err) != olperror.NotOpen {
		t.Fatalf("expected NotOpen on close before open, got %v", err)
	}
}
