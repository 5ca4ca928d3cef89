// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package olpsdk wires a loaded Config into a running request pipeline:
// transport, token provider, lookup client, two-tier cache and the
// authenticated request executor. Packages under pkg/ are usable directly
// by an application that wants to assemble its own pipeline (for example
// to swap in a custom transport.Http or kvstore.PersistentKV); New is the
// batteries-included entry point for everyone else.
//
//	cfg, err := config.Load()
//	sdk, err := olpsdk.New(cfg)
//	defer sdk.Close()
//
//	result, err := sdk.Client.Fetch(cancel.New(), client.FetchRequest{
//	    Catalog: "hrn:here:data::olp-here:rib-2",
//	    Service: "blob",
//	    Version: "v1",
//	    Path:    "/blobs/" + dataHandle,
//	})
package olpsdk

import (
	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/auth"
	"github.com/geodata-platform/olp-sdk-go/pkg/cache"
	"github.com/geodata-platform/olp-sdk-go/pkg/client"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/config"
	"github.com/geodata-platform/olp-sdk-go/pkg/kvstore"
	"github.com/geodata-platform/olp-sdk-go/pkg/lookup"
	"github.com/geodata-platform/olp-sdk-go/pkg/retry"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

// SDK bundles the constructed pipeline. Client is the component most
// callers reach for; Cache, Tokens and Lookup are exported for callers
// that need to prime the cache or force a token refresh directly.
type SDK struct {
	Client *client.OlpClient
	Cache  *cache.DefaultCache
	Tokens *auth.TokenProvider
	Lookup *lookup.ApiLookupClient

	cacheOpened bool
}

// New builds and opens a full pipeline from cfg: a shared NetHTTP
// transport, a disk-backed or memory-backed two-tier cache depending on
// whether cfg.Cache names disk paths, an OAuth2 client-credentials token
// provider, an API lookup client, and the request executor that ties
// them together. It also initializes the package-wide logger from
// cfg.Logging.
func New(cfg *config.Config) (*SDK, error) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	eviction, err := cache.ParseEvictionPolicy(cfg.Cache.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}
	sched := scheduler.Goroutine{}
	httpClient := transport.NewNetHTTP(cfg.Client.TimeoutPerAttempt)

	var mutable, protected kvstore.PersistentKV
	if cfg.Cache.DiskPathMutable != "" {
		mutable = kvstore.NewBadgerKV(false)
	}
	if cfg.Cache.DiskPathProtected != "" {
		protected = kvstore.NewBadgerKV(true)
	}

	c := cache.New(cache.Config{
		MaxMemoryBytes:          cfg.Cache.MaxMemoryBytes,
		MaxDiskBytes:            cfg.Cache.MaxDiskBytes,
		MaxValueSize:            cfg.Cache.MaxValueSize,
		MutablePath:             cfg.Cache.DiskPathMutable,
		ProtectedPath:           cfg.Cache.DiskPathProtected,
		Eviction:                eviction,
		PropagateAllCacheErrors: cfg.Cache.PropagateAllCacheErrors,
	}, mutable, protected, clk)
	if err := c.Open(); err != nil {
		return nil, err
	}

	tokens := auth.New(auth.Config{
		EndpointURL:     cfg.Auth.TokenEndpointURL,
		ClientID:        cfg.Auth.ClientID,
		ClientSecret:    cfg.Auth.ClientSecret,
		Scope:           cfg.Auth.Scope,
		MinimumValidity: cfg.Auth.MinimumValidity,
		UseSystemTime:   cfg.Auth.UseSystemTime,
		Retry:           retry.DefaultSettings(),
	}, nil, httpClient, clk, sched)

	lookupClient := lookup.New(lookup.Config{
		PlatformLookupURL: cfg.Lookup.PlatformLookupURL,
		ResourceLookupURL: cfg.Lookup.ResourceLookupURL,
	}, httpClient, c, sched)

	executor := client.New(client.Config{
		Retry: retry.Settings{
			MaxAttempts:       cfg.Client.MaxAttempts,
			InitialBackoff:    cfg.Client.InitialBackoff,
			BackoffStrategy:   retry.ExponentialBackoff,
			RetryCondition:    retry.DefaultRetryCondition,
			TimeoutPerAttempt: cfg.Client.TimeoutPerAttempt,
		},
		CoalesceGraceWindow:     cfg.Client.CoalesceGraceWindow,
		PropagateAllCacheErrors: cfg.Cache.PropagateAllCacheErrors,
		BreakerName:             "olp-sdk",
	}, lookupClient, tokens, httpClient, c, clk, sched)

	return &SDK{
		Client:      executor,
		Cache:       c,
		Tokens:      tokens,
		Lookup:      lookupClient,
		cacheOpened: true,
	}, nil
}

// Close releases the persistent cache tiers opened by New. It is a no-op
// for a memory-only cache.
func (s *SDK) Close() error {
	if !s.cacheOpened {
		return nil
	}
	s.cacheOpened = false
	return s.Cache.Close()
}
