// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package lookup implements ApiLookupClient: resolving (catalog, service,
// version) triples to base URLs, with an expiry-aware cache sitting in
// front of the platform and resource lookup services.
package lookup

import (
	"fmt"
	"net/http"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/cache"
	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
	"github.com/geodata-platform/olp-sdk-go/pkg/metrics"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

// FetchMode selects how aggressively Lookup consults the network versus
// the cache.
type FetchMode int

const (
	// CacheOnly returns the cached entry or NotFound; it never touches the
	// network.
	CacheOnly FetchMode = iota
	// CacheWithUpdate returns the cached entry immediately (if any) and
	// refreshes it in the background when expired.
	CacheWithUpdate
	// OnlineIfNotFound serves from cache when fresh, and falls back to the
	// network on a miss or expiry.
	OnlineIfNotFound
	// OnlineOnly always hits the network for the read, but still
	// write-throughs to the cache on success.
	OnlineOnly
)

// CustomCatalogEndpointProvider lets the application short-circuit the
// network lookup for a catalog, returning (base_url, true) to do so.
type CustomCatalogEndpointProvider func(catalog string) (string, bool)

// apiEntry is one element of a platform or resource lookup response.
type apiEntry struct {
	Api        string            `json:"api"`
	Version    string            `json:"version"`
	BaseURL    string            `json:"baseURL"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Config configures one ApiLookupClient.
type Config struct {
	PlatformLookupURL      string
	ResourceLookupURL      string
	PlatformServices       map[string]bool
	CustomEndpointProvider CustomCatalogEndpointProvider
}

// ApiLookupClient resolves (catalog, service, version) to a base URL.
type ApiLookupClient struct {
	cfg       Config
	http      transport.Http
	cache     *cache.DefaultCache
	scheduler scheduler.Scheduler
}

func New(cfg Config, httpClient transport.Http, c *cache.DefaultCache, sched scheduler.Scheduler) *ApiLookupClient {
	if sched == nil {
		sched = scheduler.Goroutine{}
	}
	return &ApiLookupClient{cfg: cfg, http: httpClient, cache: c, scheduler: sched}
}

func cacheKey(catalog, service, version string) string {
	return fmt.Sprintf("%s::%s::%s::api", catalog, service, version)
}

// Lookup resolves catalog/service/version to a base URL, trying the
// custom endpoint provider, then the cache, then the network, according
// to the requested FetchMode.
func (l *ApiLookupClient) Lookup(ctx cancel.Context, catalog, service, version string, mode FetchMode) (string, error) {
	if l.cfg.CustomEndpointProvider != nil {
		if base, ok := l.cfg.CustomEndpointProvider(catalog); ok && base != "" {
			return base + "/catalogs/" + catalog, nil
		}
	}

	key := cacheKey(catalog, service, version)

	switch mode {
	case CacheOnly:
		if v, ok, err := l.cache.Get(key); err == nil && ok {
			metrics.LookupCacheHits.Inc()
			return string(v), nil
		}
		metrics.LookupCacheMisses.Inc()
		return "", olperror.New(olperror.NotFound, "no cached lookup entry for "+key)

	case CacheWithUpdate:
		v, ok, _ := l.cache.Get(key)
		if ok {
			metrics.LookupCacheHits.Inc()
			return string(v), nil
		}
		metrics.LookupCacheMisses.Inc()
		l.scheduler.Spawn(func() {
			if _, err := l.fetchOnline(cancel.Background(), catalog, service, version); err != nil {
				logging.Debug().Err(err).Str("key", key).Msg("background lookup refresh failed")
			}
		})
		return "", olperror.New(olperror.NotFound, "no cached lookup entry for "+key)

	case OnlineIfNotFound:
		if v, ok, err := l.cache.Get(key); err == nil && ok {
			metrics.LookupCacheHits.Inc()
			return string(v), nil
		}
		metrics.LookupCacheMisses.Inc()
		return l.fetchOnline(ctx, catalog, service, version)

	case OnlineOnly:
		return l.fetchOnline(ctx, catalog, service, version)

	default:
		return "", olperror.Newf(olperror.InvalidArgument, "unknown fetch mode %d", mode)
	}
}

func (l *ApiLookupClient) fetchOnline(ctx cancel.Context, catalog, service, version string) (string, error) {
	var url string
	if l.cfg.PlatformServices[service] {
		url = strings.TrimRight(l.cfg.PlatformLookupURL, "/") + "/platform/apis"
	} else {
		url = strings.TrimRight(l.cfg.ResourceLookupURL, "/") + "/resources/" + catalog + "/apis"
	}

	req := &transport.Request{Method: http.MethodGet, URL: url}
	requestID, future := l.http.Send(req)
	release := ctx.Attach(func() { l.http.Cancel(requestID) })
	if release.AlreadyCancelled {
		return "", cancel.ErrCancelled
	}
	defer ctx.Detach(release.ID)

	resp, err := future.Wait(ctx)
	if err == cancel.ErrCancelled {
		return "", err
	}
	if err != nil {
		return "", olperror.Wrap(olperror.NetworkConnection, err, "lookup request transport error")
	}
	if resp.Status != http.StatusOK {
		return "", olperror.New(olperror.FromHTTPStatus(resp.Status), "lookup request failed").WithStatus(resp.Status)
	}

	var entries []apiEntry
	if err := gojson.Unmarshal(resp.Body, &entries); err != nil {
		return "", olperror.Wrap(olperror.Unknown, err, "decode lookup response")
	}

	var match *apiEntry
	for i := range entries {
		if entries[i].Api == service && entries[i].Version == version {
			match = &entries[i]
			break
		}
	}
	if match == nil {
		return "", olperror.Newf(olperror.ServiceUnavailable, "service %s version %s not advertised by platform", service, version)
	}

	ttl := resp.Headers.MaxAgeTTL()
	key := cacheKey(catalog, service, version)
	if err := l.cache.Put(key, []byte(match.BaseURL), ttl); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("failed to persist lookup entry")
	}

	return match.BaseURL, nil
}
