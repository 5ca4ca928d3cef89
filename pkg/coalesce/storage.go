// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package coalesce implements request coalescing keyed by a
// caller-supplied fingerprint, so only one concurrent request per
// fingerprint reaches the transport and late arrivals observe the
// winner's result. It is built directly on golang.org/x/sync/singleflight,
// with a short grace window layered on top so a result (success or
// failure) remains visible to arrivals that land just after the in-flight
// call completes.
package coalesce

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
)

type recentResult struct {
	value interface{}
	err   error
	at    time.Time
}

// Storage coalesces concurrent calls sharing a fingerprint.
type Storage struct {
	group singleflight.Group

	mu     sync.Mutex
	recent map[string]recentResult
	grace  time.Duration
	clock  clock.Clock
}

// NewStorage builds a Storage whose completed results remain visible to
// new callers for grace after the winning call finishes.
func NewStorage(grace time.Duration, clk clock.Clock) *Storage {
	if clk == nil {
		clk = clock.System{}
	}
	return &Storage{recent: make(map[string]recentResult), grace: grace, clock: clk}
}

// Do runs fn for fingerprint, or returns the in-flight or recently-finished
// result for it. shared reports whether the caller observed someone else's
// execution rather than running fn itself.
func (s *Storage) Do(fingerprint string, fn func() (interface{}, error)) (value interface{}, err error, shared bool) {
	s.sweep()

	s.mu.Lock()
	if r, ok := s.recent[fingerprint]; ok && s.clock.Now().Sub(r.at) < s.grace {
		s.mu.Unlock()
		return r.value, r.err, true
	}
	s.mu.Unlock()

	// singleflight also reports shared=true to the caller that ran fn when
	// others joined it, so track which caller actually ran it.
	ran := false
	value, err, _ = s.group.Do(fingerprint, func() (interface{}, error) {
		ran = true
		return fn()
	})

	s.mu.Lock()
	s.recent[fingerprint] = recentResult{value: value, err: err, at: s.clock.Now()}
	s.mu.Unlock()

	return value, err, !ran
}

// sweep drops recent results whose grace window has elapsed. It runs
// opportunistically on every Do call instead of on a timer, since the
// storage has no background goroutine of its own.
func (s *Storage) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for k, r := range s.recent {
		if now.Sub(r.at) >= s.grace {
			delete(s.recent, k)
		}
	}
}
