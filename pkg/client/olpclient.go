// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package client implements the OlpClient request executor: the component
// that glues lookup, authentication, coalescing, retry, and cache
// write-through together for a single high-level fetch.
package client

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/auth"
	"github.com/geodata-platform/olp-sdk-go/pkg/cache"
	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/coalesce"
	"github.com/geodata-platform/olp-sdk-go/pkg/lookup"
	"github.com/geodata-platform/olp-sdk-go/pkg/metrics"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
	"github.com/geodata-platform/olp-sdk-go/pkg/retry"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

// attemptState names the states of the single-attempt state machine. Fetch
// and sendWithRetry record the current state as they go, but nothing reads
// it to decide control flow: Go's control flow already enforces the legal
// transitions.
type attemptState int

const (
	stateIdle attemptState = iota
	stateResolving
	stateAuthenticating
	stateSending
	stateReceiving
	stateSuccess
	stateFailed
	stateCancelled
)

func (s attemptState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateResolving:
		return "Resolving"
	case stateAuthenticating:
		return "Authenticating"
	case stateSending:
		return "Sending"
	case stateReceiving:
		return "Receiving"
	case stateSuccess:
		return "Success"
	case stateFailed:
		return "Failed"
	case stateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Config configures one OlpClient.
type Config struct {
	Retry                   retry.Settings
	CoalesceGraceWindow     time.Duration
	PropagateAllCacheErrors bool
	BreakerName             string
}

// FetchRequest describes one high-level fetch (partition data, blob,
// quad-tree index, metadata, ...).
type FetchRequest struct {
	Catalog     string
	Service     string
	Version     string
	ResourceKey string // e.g. a data handle; combines with Catalog+Service for the coalescing fingerprint
	Path        string
	Method      string
	Headers     transport.Headers
	Body        []byte
	CacheKey    string // empty disables cache write-through for this fetch
}

// FetchResult is what a successful Fetch returns.
type FetchResult struct {
	Status  int
	Body    []byte
	Headers transport.Headers
}

// OlpClient is the authenticated, retried, coalesced request executor.
type OlpClient struct {
	cfg       Config
	lookup    *lookup.ApiLookupClient
	tokens    *auth.TokenProvider
	http      transport.Http
	cache     *cache.DefaultCache
	coalesce  *coalesce.Storage
	breaker   *gobreaker.CircuitBreaker[*transport.Response]
	clock     clock.Clock
	scheduler scheduler.Scheduler
}

func New(cfg Config, lookupClient *lookup.ApiLookupClient, tokens *auth.TokenProvider, httpClient transport.Http, c *cache.DefaultCache, clk clock.Clock, sched scheduler.Scheduler) *OlpClient {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultSettings()
	}
	if cfg.Retry.RetryCondition == nil {
		cfg.Retry.RetryCondition = retry.DefaultRetryCondition
	}
	if cfg.Retry.BackoffStrategy == nil {
		cfg.Retry.BackoffStrategy = retry.ExponentialBackoff
	}
	if clk == nil {
		clk = clock.System{}
	}
	if sched == nil {
		sched = scheduler.Goroutine{}
	}
	name := cfg.BreakerName
	if name == "" {
		name = "olp-client"
	}
	breaker := gobreaker.NewCircuitBreaker[*transport.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", breakerName).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.RecordCircuitBreakerStateChange(breakerName, to.String())
		},
	})
	return &OlpClient{
		cfg:       cfg,
		lookup:    lookupClient,
		tokens:    tokens,
		http:      httpClient,
		cache:     c,
		coalesce:  coalesce.NewStorage(cfg.CoalesceGraceWindow, clk),
		breaker:   breaker,
		clock:     clk,
		scheduler: sched,
	}
}

func fingerprint(req FetchRequest) string {
	return req.Catalog + "::" + req.Service + "::" + req.ResourceKey
}

// Fetch resolves, authenticates, coalesces, sends (with retry), and caches
// a single high-level request.
func (c *OlpClient) Fetch(ctx cancel.Context, req FetchRequest) (*FetchResult, error) {
	if ctx.CorrelationID() == "" {
		ctx = ctx.WithCorrelationID(logging.GenerateCorrelationID())
	}
	logCtx := logging.ContextWithCorrelationID(context.Background(), ctx.CorrelationID())

	state := stateIdle
	started := c.clock.Now()
	outcome := "failed"
	defer func() {
		metrics.RecordRequest(req.Service, outcome, c.clock.Now().Sub(started))
	}()

	state = stateResolving
	baseURL, err := c.lookup.Lookup(ctx, req.Catalog, req.Service, req.Version, lookup.OnlineIfNotFound)
	if err != nil {
		if err == cancel.ErrCancelled {
			outcome = "cancelled"
		}
		return nil, err
	}
	if ctx.IsCancelled() {
		outcome = "cancelled"
		return nil, cancel.ErrCancelled
	}

	state = stateAuthenticating
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		if err == cancel.ErrCancelled {
			outcome = "cancelled"
		}
		return nil, err
	}
	if ctx.IsCancelled() {
		state = stateCancelled
		outcome = "cancelled"
		return nil, cancel.ErrCancelled
	}

	fp := fingerprint(req)
	raw, coalesceErr, shared := c.coalesce.Do(fp, func() (interface{}, error) {
		return c.sendWithRetry(ctx, req, baseURL, token.AccessToken, &state)
	})
	if shared {
		metrics.RequestCoalesced.Inc()
	}
	if coalesceErr != nil {
		if coalesceErr == cancel.ErrCancelled {
			state = stateCancelled
			outcome = "cancelled"
		} else {
			state = stateFailed
		}
		return nil, coalesceErr
	}
	resp := raw.(*transport.Response)
	state = stateSuccess
	outcome = "success"

	if req.CacheKey != "" {
		ttl := resp.Headers.MaxAgeTTL()
		if err := c.cache.Put(req.CacheKey, resp.Body, ttl); err != nil {
			if c.cfg.PropagateAllCacheErrors {
				outcome = "failed"
				return nil, err
			}
			logging.CtxWarn(logCtx).Err(err).Str("key", req.CacheKey).Msg("failed to write cache entry")
		}
	}

	return &FetchResult{Status: resp.Status, Body: resp.Body, Headers: resp.Headers}, nil
}

func (c *OlpClient) sendWithRetry(ctx cancel.Context, req FetchRequest, baseURL, bearerToken string, state *attemptState) (*transport.Response, error) {
	var lastErr error

	for attempt := uint(0); attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if ctx.IsCancelled() {
			*state = stateCancelled
			return nil, cancel.ErrCancelled
		}

		*state = stateSending
		httpReq := &transport.Request{
			Method: req.Method,
			URL:    strings.TrimRight(baseURL, "/") + req.Path,
			Body:   req.Body,
			Headers: append(transport.Headers{}.
				Add("Authorization", "Bearer "+bearerToken), req.Headers...),
		}

		resp, err := c.breaker.Execute(func() (*transport.Response, error) {
			return c.attemptOnce(ctx, httpReq)
		})

		*state = stateReceiving
		if err == cancel.ErrCancelled {
			*state = stateCancelled
			return nil, err
		}
		if err == nil && !c.cfg.Retry.RetryCondition(resp.Status) {
			return resp, nil
		}

		if err == nil {
			lastErr = olperror.New(olperror.FromHTTPStatus(resp.Status), "request failed").WithStatus(resp.Status)
		} else {
			lastErr = err
		}
		*state = stateFailed

		metrics.RequestRetries.WithLabelValues(req.Service).Inc()
		delay := c.cfg.Retry.BackoffStrategy(c.cfg.Retry.InitialBackoff, attempt+1)
		if sleepErr := c.scheduler.Sleep(delay, ctx); sleepErr != nil {
			*state = stateCancelled
			return nil, sleepErr
		}
	}

	return nil, lastErr
}

// attemptOnce sends one HTTP attempt, enforcing TimeoutPerAttempt and
// distinguishing that internal timeout (retryable) from user cancellation
// of ctx (not retryable).
func (c *OlpClient) attemptOnce(ctx cancel.Context, req *transport.Request) (*transport.Response, error) {
	requestID, future := c.http.Send(req)

	release := ctx.Attach(func() { c.http.Cancel(requestID) })
	if release.AlreadyCancelled {
		return nil, cancel.ErrCancelled
	}
	defer ctx.Detach(release.ID)

	timeout := c.cfg.Retry.TimeoutPerAttempt
	if timeout <= 0 {
		return future.Wait(ctx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	type waitResult struct {
		resp *transport.Response
		err  error
	}
	resultCh := make(chan waitResult, 1)
	go func() {
		resp, err := future.Wait(ctx)
		resultCh <- waitResult{resp, err}
	}()

	select {
	case r := <-resultCh:
		return r.resp, r.err
	case <-timer.C:
		c.http.Cancel(requestID)
		if ctx.IsCancelled() {
			return nil, cancel.ErrCancelled
		}
		return nil, olperror.New(olperror.RequestTimeout, "per-attempt timeout exceeded")
	}
}

