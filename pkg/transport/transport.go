// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package transport defines the abstract Http collaborator: the request
// pipeline only depends on this interface, never on net/http directly, so
// platform-specific transports can be substituted.
//
// The old callback/future/sync triplet collapses into one async operation
// (Send returns a *Future) plus a convenience blocking helper
// (Future.Wait); the callback style is recovered with Future.Then.
package transport

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
)

// Header is a single ordered (name, value) pair. Headers preserve insertion
// order on the wire; lookups by name are case-insensitive.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list carried by both requests and responses.
type Headers []Header

// Get returns the first value for name (case-insensitive), or "" if absent.
func (h Headers) Get(name string) string {
	for _, kv := range h {
		if equalFold(kv.Name, name) {
			return kv.Value
		}
	}
	return ""
}

// Add appends a header, preserving order.
func (h Headers) Add(name, value string) Headers {
	return append(h, Header{Name: name, Value: value})
}

// MaxAgeTTL extracts max-age from the Cache-Control header, returning 0 (no
// expiry) if the header is absent or its max-age directive is malformed.
func (h Headers) MaxAgeTTL() time.Duration {
	for _, directive := range strings.Split(h.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(directive)
		if !strings.HasPrefix(directive, "max-age=") {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
		if err != nil || seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// NetworkStatistics reports basic transfer accounting for a completed request.
type NetworkStatistics struct {
	BytesUploaded   int64
	BytesDownloaded int64
}

// Request describes one outgoing HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers Headers
	Body    []byte
}

// Response is the value type returned for a completed HTTP exchange.
type Response struct {
	Status  int
	Headers Headers
	Body    []byte
	Stats   NetworkStatistics
}

// Result is what a Future resolves to: a Response, or an error if the
// request failed at the transport level (never populated for non-2xx HTTP
// status, which is a valid Response the caller must interpret).
type Result struct {
	Response *Response
	Err      error
}

// Future is returned by Send. Exactly one of Wait's/Then's result paths
// fires, whether the request succeeds, fails, or is cancelled.
type Future struct {
	mu       sync.Mutex
	done     bool
	result   Result
	waiters  []chan struct{}
}

func newFuture() *Future {
	return &Future{}
}

// NewCompletedFuture builds a Future that has already resolved, for fake
// Http implementations in tests that don't need real asynchrony.
func NewCompletedFuture(resp *Response, err error) *Future {
	f := newFuture()
	f.complete(Result{Response: resp, Err: err})
	return f
}

// NewPendingFuture builds a Future that resolves only when the returned
// resolve function is called, for fake Http implementations that need to
// simulate a request blocked in flight.
func NewPendingFuture() (f *Future, resolve func(*Response, error)) {
	f = newFuture()
	return f, func(resp *Response, err error) {
		f.complete(Result{Response: resp, Err: err})
	}
}

func (f *Future) complete(res Result) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.result = res
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Wait blocks until the future resolves or ctx is cancelled. On cancellation
// it returns olperror-kind Cancelled without waiting for the underlying
// transport to actually finish (the caller is expected to also call
// Http.Cancel for the same request_id).
func (f *Future) Wait(ctx cancel.Context) (*Response, error) {
	f.mu.Lock()
	if f.done {
		res := f.result
		f.mu.Unlock()
		return res.Response, res.Err
	}
	wc := make(chan struct{})
	f.waiters = append(f.waiters, wc)
	f.mu.Unlock()

	cancelled := make(chan struct{})
	attach := ctx.Attach(func() { close(cancelled) })
	if attach.AlreadyCancelled {
		return nil, cancel.ErrCancelled
	}
	defer ctx.Detach(attach.ID)

	select {
	case <-wc:
		f.mu.Lock()
		res := f.result
		f.mu.Unlock()
		return res.Response, res.Err
	case <-cancelled:
		return nil, cancel.ErrCancelled
	}
}

// Then registers cb to run once the future resolves; if it already has,
// cb runs synchronously. This recovers a callback style on top of the
// future-returning API for callers who prefer it.
func (f *Future) Then(cb func(*Response, error)) {
	f.mu.Lock()
	if f.done {
		res := f.result
		f.mu.Unlock()
		cb(res.Response, res.Err)
		return
	}
	wc := make(chan struct{})
	f.waiters = append(f.waiters, wc)
	f.mu.Unlock()

	go func() {
		<-wc
		f.mu.Lock()
		res := f.result
		f.mu.Unlock()
		cb(res.Response, res.Err)
	}()
}

// Http is the abstract transport collaborator. Send returns immediately
// with a monotonic request ID and a Future; Cancel aborts the in-flight
// request identified by that ID.
type Http interface {
	Send(req *Request) (requestID uint64, future *Future)
	Cancel(requestID uint64)
}
