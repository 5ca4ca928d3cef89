// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package kvstore

import (
	"testing"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

func TestMemoryKVPutGet(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV(nil)
	if err := kv.Open(""); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	kv.Put("a", []byte("1"), 0)
	val, ok, err := kv.Get("a")
	if err != nil || !ok || string(val) != "1" {
		t.Fatalf("unexpected result: val=%q ok=%v err=%v", val, ok, err)
	}
}

func TestMemoryKVTTLExpiryUsesInjectedClock(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	kv := NewMemoryKV(fake)
	kv.Open("")
	defer kv.Close()

	kv.Put("a", []byte("1"), time.Second)

	if _, ok, _ := kv.Get("a"); !ok {
		t.Fatalf("expected entry present before expiry")
	}

	fake.Advance(2 * time.Second)

	if _, ok, _ := kv.Get("a"); ok {
		t.Fatalf("expected entry expired")
	}
}

func TestMemoryKVRemoveWithPrefix(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV(nil)
	kv.Open("")
	defer kv.Close()

	kv.Put("catalog/a", []byte("1"), 0)
	kv.Put("catalog/b", []byte("2"), 0)
	kv.Put("other", []byte("3"), 0)

	kv.RemoveWithPrefix("catalog/")

	if _, ok, _ := kv.Get("catalog/a"); ok {
		t.Fatalf("expected removed")
	}
	if _, ok, _ := kv.Get("other"); !ok {
		t.Fatalf("expected other to survive")
	}
}

func TestMemoryKVOperationsBeforeOpenFail(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV(nil)
	if _, _, err := kv.Get("x"); olperror.KindOf(err) != olperror.NotOpen {
		t.Fatalf("expected NotOpen, got %v", err)
	}
}

func TestMemoryKVValuesAreCopiedNotAliased(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV(nil)
	kv.Open("")
	defer kv.Close()

	original := []byte("abc")
	kv.Put("k", original, 0)
	original[0] = 'z'

	val, _, _ := kv.Get("k")
	if string(val) != "abc" {
		t.Fatalf("expected stored value isolated from caller mutation, got %q", val)
	}

	val[0] = 'z'
	val2, _, _ := kv.Get("k")
	if string(val2) != "abc" {
		t.Fatalf("expected returned value isolated from internal storage, got %q", val2)
	}
}
