// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package client

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"

	olauth "github.com/geodata-platform/olp-sdk-go/pkg/auth"
	"github.com/geodata-platform/olp-sdk-go/pkg/cache"
	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/kvstore"
	"github.com/geodata-platform/olp-sdk-go/pkg/lookup"
	"github.com/geodata-platform/olp-sdk-go/pkg/retry"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

type instantTransport struct {
	response *transport.Response
	calls    int32
}

func (f *instantTransport) Send(req *transport.Request) (uint64, *transport.Future) {
	atomic.AddInt32(&f.calls, 1)
	return 1, transport.NewCompletedFuture(f.response, nil)
}
func (f *instantTransport) Cancel(requestID uint64) {}

// blockingTransport answers Send with a Future that never resolves on its
// own, letting tests exercise mid-flight cancellation. Cancellation of the
// caller's context unblocks Future.Wait directly (it attaches to the
// context itself); Cancel here only records that the client asked the
// transport to abandon the in-flight request.
type blockingTransport struct {
	response    *transport.Response
	sendCalls   int32
	cancelCalls int32
}

func newBlockingTransport(resp *transport.Response) *blockingTransport {
	return &blockingTransport{response: resp}
}

func (b *blockingTransport) Send(req *transport.Request) (uint64, *transport.Future) {
	atomic.AddInt32(&b.sendCalls, 1)
	future, _ := transport.NewPendingFuture()
	return 1, future
}

func (b *blockingTransport) Cancel(requestID uint64) {
	atomic.AddInt32(&b.cancelCalls, 1)
}

func newTestLookupClient(t *testing.T, baseURL string) *lookup.ApiLookupClient {
	t.Helper()
	entries := []struct {
		Api     string `json:"api"`
		Version string `json:"version"`
		BaseURL string `json:"baseURL"`
	}{{Api: "blob", Version: "v1", BaseURL: baseURL}}
	body, err := gojson.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	tr := &instantTransport{response: &transport.Response{Status: http.StatusOK, Body: body}}
	fakeClock := clock.NewFake(time.Unix(0, 0))
	c := cache.New(cache.Config{MaxMemoryBytes: 1 << 20, MaxDiskBytes: 1 << 20, Eviction: cache.EvictionLeastRecentlyUsed}, kvstore.NewMemoryKV(fakeClock), nil, fakeClock)
	if err := c.Open(); err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return lookup.New(lookup.Config{ResourceLookupURL: "https://resource.example.com"}, tr, c, scheduler.Goroutine{})
}

func newTestTokenProvider(t *testing.T) *olauth.TokenProvider {
	t.Helper()
	body, err := gojson.Marshal(map[string]interface{}{"accessToken": "TOK", "expiresIn": 300})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	tr := &instantTransport{response: &transport.Response{Status: http.StatusOK, Body: body}}
	cfg := olauth.Config{EndpointURL: "https://auth.example.com", ClientID: "id", ClientSecret: "secret", UseSystemTime: true, MinimumValidity: time.Minute, Retry: retry.DefaultSettings()}
	return olauth.New(cfg, nil, tr, clock.System{}, scheduler.Goroutine{})
}

func newTestFetchCache(t *testing.T) *cache.DefaultCache {
	t.Helper()
	fakeClock := clock.NewFake(time.Unix(0, 0))
	c := cache.New(cache.Config{MaxMemoryBytes: 1 << 20, MaxDiskBytes: 1 << 20, Eviction: cache.EvictionLeastRecentlyUsed}, kvstore.NewMemoryKV(fakeClock), nil, fakeClock)
	if err := c.Open(); err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFetchSuccessWritesCacheEntry(t *testing.T) {
	t.Parallel()

	lookupClient := newTestLookupClient(t, "https://data.example.com")
	tokens := newTestTokenProvider(t)
	dataTransport := &instantTransport{response: &transport.Response{Status: http.StatusOK, Body: []byte("payload")}}
	fetchCache := newTestFetchCache(t)

	cfg := Config{Retry: retry.Settings{MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffStrategy: retry.ExponentialBackoff, RetryCondition: retry.DefaultRetryCondition, TimeoutPerAttempt: time.Second}, CoalesceGraceWindow: time.Second}
	c := New(cfg, lookupClient, tokens, dataTransport, fetchCache, clock.System{}, scheduler.Goroutine{})

	req := FetchRequest{Catalog: "cat", Service: "blob", Version: "v1", ResourceKey: "handle-1", Method: http.MethodGet, Path: "/blobs/handle-1", CacheKey: "cat::blob::handle-1"}
	result, err := c.Fetch(cancel.New(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Body) != "payload" {
		t.Fatalf("unexpected body: %q", result.Body)
	}

	cached, ok, err := fetchCache.Get("cat::blob::handle-1")
	if err != nil || !ok || string(cached) != "payload" {
		t.Fatalf("expected cache write-through, got ok=%v err=%v val=%q", ok, err, cached)
	}
}

func TestFetchCancellationMidFlight(t *testing.T) {
	t.Parallel()

	lookupClient := newTestLookupClient(t, "https://data.example.com")
	tokens := newTestTokenProvider(t)
	dataTransport := newBlockingTransport(&transport.Response{Status: http.StatusOK, Body: []byte("late")})
	fetchCache := newTestFetchCache(t)

	cfg := Config{Retry: retry.Settings{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffStrategy: retry.ExponentialBackoff, RetryCondition: retry.DefaultRetryCondition, TimeoutPerAttempt: 5 * time.Second}, CoalesceGraceWindow: time.Second}
	c := New(cfg, lookupClient, tokens, dataTransport, fetchCache, clock.System{}, scheduler.Goroutine{})

	ctx := cancel.New()
	req := FetchRequest{Catalog: "cat", Service: "blob", Version: "v1", ResourceKey: "handle-2", Method: http.MethodGet, Path: "/blobs/handle-2", CacheKey: "cat::blob::handle-2"}

	resultCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, req)
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	ctx.Cancel()

	select {
	case err := <-resultCh:
		if err != cancel.ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}

	if atomic.LoadInt32(&dataTransport.cancelCalls) != 1 {
		t.Fatalf("expected transport Cancel invoked exactly once, got %d", dataTransport.cancelCalls)
	}

	if _, ok, _ := fetchCache.Get("cat::blob::handle-2"); ok {
		t.Fatalf("expected no cache entry written for a cancelled fetch")
	}
}

func TestFetchCoalescesConcurrentRequestsWithSameFingerprint(t *testing.T) {
	t.Parallel()

	lookupClient := newTestLookupClient(t, "https://data.example.com")
	tokens := newTestTokenProvider(t)
	dataTransport := &instantTransport{response: &transport.Response{Status: http.StatusOK, Body: []byte("shared")}}
	fetchCache := newTestFetchCache(t)

	cfg := Config{Retry: retry.Settings{MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffStrategy: retry.ExponentialBackoff, RetryCondition: retry.DefaultRetryCondition, TimeoutPerAttempt: time.Second}, CoalesceGraceWindow: time.Second}
	c := New(cfg, lookupClient, tokens, dataTransport, fetchCache, clock.System{}, scheduler.Goroutine{})

	const n = 5
	resultCh := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			req := FetchRequest{Catalog: "cat", Service: "blob", Version: "v1", ResourceKey: "shared-handle", Method: http.MethodGet, Path: "/blobs/shared-handle"}
			result, err := c.Fetch(cancel.New(), req)
			if err != nil {
				resultCh <- "ERROR:" + err.Error()
				return
			}
			resultCh <- string(result.Body)
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case body := <-resultCh:
			if body != "shared" {
				t.Fatalf("unexpected body: %q", body)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for coalesced fetches")
		}
	}

	if dataTransport.calls != 1 {
		t.Fatalf("expected exactly one transport call across coalesced fetches, got %d", dataTransport.calls)
	}
}
