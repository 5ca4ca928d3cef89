// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package lookup

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/geodata-platform/olp-sdk-go/pkg/cache"
	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/kvstore"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

type fakeLookupTransport struct {
	response *transport.Response
	calls    int32
}

func (f *fakeLookupTransport) Send(req *transport.Request) (uint64, *transport.Future) {
	atomic.AddInt32(&f.calls, 1)
	return 1, transport.NewCompletedFuture(f.response, nil)
}

func (f *fakeLookupTransport) Cancel(requestID uint64) {}

func newTestLookupCache(t *testing.T, clk clock.Clock) *cache.DefaultCache {
	t.Helper()
	c := cache.New(cache.Config{MaxMemoryBytes: 1 << 20, MaxDiskBytes: 1 << 20, Eviction: cache.EvictionLeastRecentlyUsed}, kvstore.NewMemoryKV(clk), nil, clk)
	if err := c.Open(); err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLookupTTLScenario(t *testing.T) {
	t.Parallel()

	entries := []apiEntry{{Api: "config", Version: "v1", BaseURL: "https://x/config/v1"}}
	body, err := gojson.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp := &transport.Response{
		Status:  http.StatusOK,
		Body:    body,
		Headers: transport.Headers{}.Add("Cache-Control", "max-age=1"),
	}
	tr := &fakeLookupTransport{response: resp}

	fakeClock := clock.NewFake(time.Unix(0, 0))
	c := newTestLookupCache(t, fakeClock)

	client := New(Config{
		PlatformLookupURL: "https://platform.example.com",
		ResourceLookupURL: "https://resource.example.com",
		PlatformServices:  map[string]bool{"config": true},
	}, tr, c, scheduler.Goroutine{})

	url, err := client.Lookup(cancel.New(), "catalog-a", "config", "v1", OnlineIfNotFound)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://x/config/v1" {
		t.Fatalf("unexpected url: %q", url)
	}
	if tr.calls != 1 {
		t.Fatalf("expected exactly one network hit, got %d", tr.calls)
	}

	url2, err := client.Lookup(cancel.New(), "catalog-a", "config", "v1", CacheOnly)
	if err != nil || url2 != url {
		t.Fatalf("expected cached hit, got %q err=%v", url2, err)
	}
	if tr.calls != 1 {
		t.Fatalf("expected zero additional network hits, got total %d", tr.calls)
	}

	fakeClock.Advance(2 * time.Second)

	_, err = client.Lookup(cancel.New(), "catalog-a", "config", "v1", CacheOnly)
	if olperror.KindOf(err) != olperror.NotFound {
		t.Fatalf("expected NotFound after expiry, got %v", err)
	}
}

func TestLookupCustomEndpointProviderBypassesNetwork(t *testing.T) {
	t.Parallel()

	tr := &fakeLookupTransport{}
	fakeClock := clock.NewFake(time.Unix(0, 0))
	c := newTestLookupCache(t, fakeClock)

	client := New(Config{
		CustomEndpointProvider: func(catalog string) (string, bool) {
			return "https://custom.example.com", true
		},
	}, tr, c, scheduler.Goroutine{})

	url, err := client.Lookup(cancel.New(), "catalog-a", "config", "v1", OnlineOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://custom.example.com/catalogs/catalog-a" {
		t.Fatalf("unexpected url: %q", url)
	}
	if tr.calls != 0 {
		t.Fatalf("expected no network calls, got %d", tr.calls)
	}
}

func TestLookupUnknownServiceReturnsServiceUnavailable(t *testing.T) {
	t.Parallel()

	entries := []apiEntry{{Api: "other", Version: "v1", BaseURL: "https://x/other/v1"}}
	body, _ := gojson.Marshal(entries)
	tr := &fakeLookupTransport{response: &transport.Response{Status: http.StatusOK, Body: body}}

	fakeClock := clock.NewFake(time.Unix(0, 0))
	c := newTestLookupCache(t, fakeClock)
	client := New(Config{ResourceLookupURL: "https://resource.example.com"}, tr, c, scheduler.Goroutine{})

	_, err := client.Lookup(cancel.New(), "catalog-a", "config", "v1", OnlineOnly)
	if olperror.KindOf(err) != olperror.ServiceUnavailable {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}
