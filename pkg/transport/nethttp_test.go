// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
)

func TestNetHTTPSendSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	tr := NewNetHTTP(5 * time.Second)
	_, future := tr.Send(&Request{Method: http.MethodGet, URL: srv.URL})

	resp, err := future.Wait(cancel.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", resp.Body)
	}
	if resp.Headers.Get("x-test") != "yes" {
		t.Fatalf("expected case-insensitive header lookup to find X-Test")
	}
}

func TestNetHTTPCancelDuringReceive(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	tr := NewNetHTTP(10 * time.Second)
	id, future := tr.Send(&Request{Method: http.MethodGet, URL: srv.URL})

	ctx := cancel.New()
	ctx.Attach(func() { tr.Cancel(id) })

	done := make(chan struct{})
	go func() {
		ctx.Cancel()
		close(done)
	}()
	<-done

	_, err := future.Wait(cancel.New())
	if err == nil {
		t.Fatalf("expected transport-level error after cancel")
	}
}

func TestFutureThenAfterCompletion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewNetHTTP(5 * time.Second)
	_, future := tr.Send(&Request{Method: http.MethodGet, URL: srv.URL})

	// Let it settle before registering Then, to exercise the synchronous path.
	future.Wait(cancel.New())

	calledCh := make(chan int, 1)
	future.Then(func(resp *Response, err error) {
		if err != nil {
			calledCh <- -1
			return
		}
		calledCh <- resp.Status
	})

	select {
	case status := <-calledCh:
		if status != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", status)
		}
	case <-time.After(time.Second):
		t.Fatal("Then callback never fired")
	}
}
