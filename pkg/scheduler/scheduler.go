// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package scheduler provides an abstract task scheduler — spawn/sleep
// primitives the rest of the SDK depends on instead of assuming a
// single-threaded event loop, so a test suite can substitute a
// deterministic scheduler.
package scheduler

import (
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
)

// Scheduler runs background tasks and cancellable sleeps.
type Scheduler interface {
	// Spawn runs task on its own goroutine (or worker, per implementation).
	Spawn(task func())
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	// It returns olperror-kind Cancelled if ctx was cancelled before d elapsed.
	Sleep(d time.Duration, ctx cancel.Context) error
}

// Goroutine is the default Scheduler: Spawn starts a bare goroutine, Sleep
// races a timer against the cancellation context's handle.
type Goroutine struct{}

func (Goroutine) Spawn(task func()) {
	go task()
}

func (Goroutine) Sleep(d time.Duration, ctx cancel.Context) error {
	return sleepCancellable(d, ctx)
}

func sleepCancellable(d time.Duration, ctx cancel.Context) error {
	if ctx.IsCancelled() {
		return cancel.ErrCancelled
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	done := make(chan struct{})
	res := ctx.Attach(func() { close(done) })
	if res.AlreadyCancelled {
		return cancel.ErrCancelled
	}
	defer ctx.Detach(res.ID)

	select {
	case <-timer.C:
		return nil
	case <-done:
		return cancel.ErrCancelled
	}
}
