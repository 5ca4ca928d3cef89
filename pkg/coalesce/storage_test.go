// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package coalesce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
)

func TestConcurrentCallsCoalesceToOneExecution(t *testing.T) {
	t.Parallel()

	s := NewStorage(2*time.Second, clock.System{})
	var calls int32
	release := make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err, _ := s.Do("fp", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "result", nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[idx] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected exactly one execution, got %d", calls)
	}
	for _, r := range results {
		if r != "result" {
			t.Fatalf("expected every caller to observe %q, got %v", "result", r)
		}
	}
}

func TestGraceWindowServesLateArrivalAfterCompletion(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	s := NewStorage(time.Second, fake)

	var calls int32
	_, _, _ = s.Do("fp", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "first", nil
	})

	v, _, shared := s.Do("fp", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "second", nil
	})
	if !shared {
		t.Fatalf("expected late arrival within grace window to share the result")
	}
	if v != "first" {
		t.Fatalf("expected grace window to serve the first result, got %v", v)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one execution within grace window, got %d", calls)
	}

	fake.Advance(2 * time.Second)

	_, _, shared2 := s.Do("fp", func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "third", nil
	})
	if shared2 {
		t.Fatalf("expected a fresh execution after the grace window elapsed")
	}
	if calls != 2 {
		t.Fatalf("expected a second execution after grace window, got %d", calls)
	}
}

func TestDifferentFingerprintsDoNotCoalesce(t *testing.T) {
	t.Parallel()

	s := NewStorage(time.Second, clock.System{})
	var calls int32

	s.Do("a", func() (interface{}, error) { atomic.AddInt32(&calls, 1); return "a", nil })
	s.Do("b", func() (interface{}, error) { atomic.AddInt32(&calls, 1); return "b", nil })

	if calls != 2 {
		t.Fatalf("expected independent fingerprints to execute independently, got %d calls", calls)
	}
}
