// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package clock provides an injectable time source, so token expiry,
// cache TTL and lookup max-age logic can be driven by a fake clock in
// tests instead of wall time.
package clock

import "time"

// Clock abstracts wall-clock and monotonic time.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// Since returns the monotonic elapsed duration since t.
	Since(t time.Time) time.Duration
}

// System is the default Clock backed by the time package.
type System struct{}

func (System) Now() time.Time                  { return time.Now() }
func (System) Since(t time.Time) time.Duration { return time.Since(t) }

// Fake is a deterministic Clock for tests: Now() returns a stored time that
// only moves when Advance is called.
type Fake struct {
	now time.Time
}

// NewFake returns a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Since(t time.Time) time.Duration { return f.now.Sub(t) }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.now = f.now.Add(d) }

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) { f.now = t }
