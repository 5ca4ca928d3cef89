// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package cancel implements a hierarchical, thread-safe cooperative
// cancellation token: a value cheap to clone and share across goroutines,
// whose Cancel fans out to every handle attached for the duration of an
// in-flight operation.
package cancel

import (
	"sync"

	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
)

// ErrCancelled is returned by ExecuteWith when the context was already
// cancelled before the operation could start.
var ErrCancelled = olperror.New(olperror.Cancelled, "cancellation context already cancelled")

// Handle is invoked at most once by a Context: either synchronously inside
// Attach (if the context is already cancelled) or from Cancel. Handles are
// typically "abort this in-flight HTTP request" or "release this mutex".
type Handle func()

// Context is a hierarchical cooperative cancellation token. The zero value
// is not usable; construct one with New. Context is safe to copy and share:
// all state lives behind the pointer to an internal struct.
type Context struct {
	state *state
}

type state struct {
	mu            sync.Mutex
	cancelled     bool
	handles       map[uint64]Handle
	nextID        uint64
	correlationID string
}

// New returns a fresh, not-yet-cancelled Context.
func New() Context {
	return Context{state: &state{handles: make(map[uint64]Handle)}}
}

// AttachResult is returned by Attach.
type AttachResult struct {
	ID             uint64
	AlreadyCancelled bool
}

// Attach registers handle for invocation when the context is cancelled.
// If the context is already cancelled, handle is invoked synchronously
// before Attach returns, and AttachResult.AlreadyCancelled is true — the
// returned ID is still valid to pass to Detach, which is then a no-op.
func (c Context) Attach(handle Handle) AttachResult {
	if c.state == nil || handle == nil {
		return AttachResult{}
	}
	c.state.mu.Lock()
	if c.state.cancelled {
		c.state.mu.Unlock()
		handle()
		return AttachResult{AlreadyCancelled: true}
	}
	c.state.nextID++
	id := c.state.nextID
	c.state.handles[id] = handle
	c.state.mu.Unlock()
	return AttachResult{ID: id}
}

// Detach removes a previously attached handle without invoking it. Detach is
// idempotent: detaching an unknown or already-removed ID is a no-op.
func (c Context) Detach(id uint64) {
	if c.state == nil || id == 0 {
		return
	}
	c.state.mu.Lock()
	delete(c.state.handles, id)
	c.state.mu.Unlock()
}

// ExecuteWith attaches handle for the duration of operation and detaches it
// afterward regardless of how operation returns. If the context is already
// cancelled, handle still runs (per Attach's contract) but operation does
// not — ExecuteWith returns immediately so callers don't start I/O whose
// cancel handle has already fired.
func ExecuteWith[T any](c Context, handle Handle, operation func() (T, error)) (T, error) {
	res := c.Attach(handle)
	if res.AlreadyCancelled {
		var zero T
		return zero, ErrCancelled
	}
	defer c.Detach(res.ID)
	return operation()
}

// Cancel sets the cancelled flag (idempotent), takes and clears the handle
// set under the lock, then invokes every taken handle outside it. Cancel never blocks
// on a handle's own work — it is fire-and-forget from the caller's view.
func (c Context) Cancel() {
	if c.state == nil {
		return
	}
	c.state.mu.Lock()
	if c.state.cancelled {
		c.state.mu.Unlock()
		return
	}
	c.state.cancelled = true
	handles := c.state.handles
	c.state.handles = make(map[uint64]Handle)
	c.state.mu.Unlock()

	for _, h := range handles {
		h()
	}
}

// IsCancelled reports whether Cancel has been called. Once true it never
// becomes false again for this Context's lifetime.
func (c Context) IsCancelled() bool {
	if c.state == nil {
		return false
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.cancelled
}

// Background returns a fresh, uncancelled Context for callers that have no
// caller-supplied context to propagate — tests and fire-and-forget
// background refreshes.
func Background() Context {
	return New()
}

// WithCorrelationID stamps id onto this Context's shared state so every
// component a single request fans out to (lookup, auth, the request
// executor) can log under the same correlation ID. It mutates the shared
// state in place rather than forking it, matching how cancellation itself
// is shared: call it once near the top of a request before passing ctx
// down, not concurrently with itself on the same Context.
func (c Context) WithCorrelationID(id string) Context {
	if c.state == nil {
		return c
	}
	c.state.mu.Lock()
	c.state.correlationID = id
	c.state.mu.Unlock()
	return c
}

// CorrelationID returns the ID stamped by WithCorrelationID, or "" if none
// was set.
func (c Context) CorrelationID() string {
	if c.state == nil {
		return ""
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	return c.state.correlationID
}
