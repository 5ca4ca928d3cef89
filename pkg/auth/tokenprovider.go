// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package auth implements OAuth2 client-credentials token acquisition
// with a serialized refresh and proactive, minimum-validity-aware expiry.
package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/geodata-platform/olp-sdk-go/internal/logging"
	"github.com/geodata-platform/olp-sdk-go/pkg/cancel"
	"github.com/geodata-platform/olp-sdk-go/pkg/clock"
	"github.com/geodata-platform/olp-sdk-go/pkg/metrics"
	"github.com/geodata-platform/olp-sdk-go/pkg/olperror"
	"github.com/geodata-platform/olp-sdk-go/pkg/retry"
	"github.com/geodata-platform/olp-sdk-go/pkg/scheduler"
	"github.com/geodata-platform/olp-sdk-go/pkg/transport"
)

// errWrongTimestamp is the platform's error code for a client-credentials
// request rejected for clock skew, carried in the JSON error body.
const errWrongTimestamp = 401204

// ForceRefresh, used as Config.MinimumValidity, disables the cached-token
// fast path entirely: every GetToken call performs a fresh refresh. It is
// also Config's zero value, so a Config built without DefaultConfig starts
// in force-refresh mode rather than silently picking a default window.
const ForceRefresh time.Duration = 0

// DefaultMinimumValidity is the five-minute window used by DefaultConfig.
const DefaultMinimumValidity = 5 * time.Minute

// logCtx builds the stdlib context logging.Ctx expects, carrying whatever
// correlation ID GetToken stamped onto ctx.
func logCtx(ctx cancel.Context) context.Context {
	return logging.ContextWithCorrelationID(context.Background(), ctx.CorrelationID())
}

// Config configures one TokenProvider.
type Config struct {
	EndpointURL     string // base URL; "/oauth2/token" is appended, after removing the first copy of it already present
	ClientID        string
	ClientSecret    string
	Scope           string
	MinimumValidity time.Duration
	UseSystemTime   bool
	Retry           retry.Settings
}

// TokenProvider caches one OAuth2 client-credentials token, refreshing it
// under a single mutex so concurrent callers serialize onto one network
// request instead of racing.
type TokenProvider struct {
	mu sync.Mutex

	cfg       Config
	endpoint  string
	signer    Signer
	http      transport.Http
	clock     clock.Clock
	scheduler scheduler.Scheduler

	current   *oauth2.Token
	refreshAt time.Time
}

// DefaultConfig returns a Config with the platform's usual five-minute
// minimum validity window and default retry settings; callers that want
// ForceRefresh semantics should set MinimumValidity to 0 explicitly after
// copying this.
func DefaultConfig() Config {
	return Config{MinimumValidity: DefaultMinimumValidity, Retry: retry.DefaultSettings()}
}

// New builds a TokenProvider. A nil signer defaults to HMACSigner using the
// config's client credentials.
func New(cfg Config, signer Signer, httpClient transport.Http, clk clock.Clock, sched scheduler.Scheduler) *TokenProvider {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultSettings()
	}
	if signer == nil {
		signer = &HMACSigner{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if sched == nil {
		sched = scheduler.Goroutine{}
	}
	return &TokenProvider{
		cfg:       cfg,
		endpoint:  stripOAuthSuffix(cfg.EndpointURL),
		signer:    signer,
		http:      httpClient,
		clock:     clk,
		scheduler: sched,
	}
}

// stripOAuthSuffix removes the first occurrence of /oauth2/token from a
// configured endpoint URL (wherever it appears), so the same field can be reused as the base path for
// /timestamp, matching the original SDK's GetBasePath behavior.
func stripOAuthSuffix(base string) string {
	const suffix = "/oauth2/token"
	return strings.Replace(base, suffix, "", 1)
}

// GetToken returns a valid bearer token, refreshing one if necessary.
func (p *TokenProvider) GetToken(ctx cancel.Context) (*oauth2.Token, error) {
	if ctx.CorrelationID() == "" {
		ctx = ctx.WithCorrelationID(logging.GenerateCorrelationID())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.IsCancelled() {
		return nil, cancel.ErrCancelled
	}

	now := p.clock.Now()
	if p.cfg.MinimumValidity != ForceRefresh && p.current != nil && now.Before(p.refreshAt) {
		clone := *p.current
		return &clone, nil
	}

	return p.refresh(ctx)
}

func (p *TokenProvider) refresh(ctx cancel.Context) (*oauth2.Token, error) {
	started := p.clock.Now()

	timestamp, err := p.requestTimestamp(ctx)
	if err != nil {
		metrics.RecordTokenRefresh("failure", p.clock.Now().Sub(started))
		return nil, err
	}

	tok, err := p.exchangeWithRetry(ctx, timestamp, false)
	if err != nil {
		metrics.RecordTokenRefresh("failure", p.clock.Now().Sub(started))
		return nil, err
	}
	metrics.RecordTokenRefresh("success", p.clock.Now().Sub(started))
	logging.CtxDebug(logCtx(ctx)).Str("token", logging.RedactToken(tok.AccessToken)).Msg("token refreshed")

	p.current = tok
	expiresIn := tok.Expiry.Sub(p.clock.Now())
	skew := p.cfg.MinimumValidity
	if skew < 0 {
		skew = 0
	}
	refreshIn := expiresIn - skew
	if refreshIn < 0 {
		refreshIn = 0
	}
	if refreshIn > expiresIn {
		refreshIn = expiresIn
	}
	p.refreshAt = p.clock.Now().Add(refreshIn)

	clone := *tok
	return &clone, nil
}

// requestTimestamp computes the timestamp to sign the token request with.
func (p *TokenProvider) requestTimestamp(ctx cancel.Context) (time.Time, error) {
	if p.cfg.UseSystemTime {
		return p.clock.Now(), nil
	}

	sent := p.clock.Now()
	req := &transport.Request{Method: http.MethodGet, URL: p.endpoint + "/timestamp"}
	requestID, future := p.http.Send(req)

	release := ctx.Attach(func() { p.http.Cancel(requestID) })
	if release.AlreadyCancelled {
		return time.Time{}, cancel.ErrCancelled
	}
	defer ctx.Detach(release.ID)

	resp, err := future.Wait(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if resp.Status != http.StatusOK {
		return time.Time{}, olperror.Newf(olperror.ServiceUnavailable, "timestamp endpoint returned %d", resp.Status)
	}

	var body struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := gojson.Unmarshal(resp.Body, &body); err != nil {
		return time.Time{}, olperror.Wrap(olperror.Unknown, err, "decode timestamp response")
	}

	elapsed := p.clock.Now().Sub(sent)
	return time.Unix(body.Timestamp, 0).Add(elapsed), nil
}

type tokenResponseBody struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	Scope       string `json:"scope,omitempty"`
}

type errorResponseBody struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

// exchangeWithRetry executes the POST /oauth2/token exchange with
// retry/backoff. reissue marks a clock-skew re-issue, which does not
// consume an extra attempt beyond the one re-issue.
func (p *TokenProvider) exchangeWithRetry(ctx cancel.Context, timestamp time.Time, reissued bool) (*oauth2.Token, error) {
	var lastErr error

	for attempt := uint(0); attempt < p.cfg.Retry.MaxAttempts; attempt++ {
		if ctx.IsCancelled() {
			return nil, cancel.ErrCancelled
		}

		tok, skew, err := p.exchangeOnce(ctx, timestamp)
		if err == nil && skew == nil {
			return tok, nil
		}
		if err == cancel.ErrCancelled {
			return nil, err
		}

		if skew != nil {
			if !reissued {
				logging.CtxDebug(logCtx(ctx)).Msg("token request rejected for clock skew, re-issuing once")
				return p.exchangeWithRetry(ctx, *skew, true)
			}
			return nil, olperror.New(olperror.AccessDenied, "token request rejected for clock skew again after re-issue")
		}

		kind := olperror.KindOf(err)
		if !olperror.IsRetryableKind(kind) {
			return nil, err
		}
		lastErr = err

		delay := p.cfg.Retry.BackoffStrategy(p.cfg.Retry.InitialBackoff, attempt+1)
		if err := p.scheduler.Sleep(delay, ctx); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// exchangeOnce performs a single POST /oauth2/token attempt. On a
// clock-skew 401 it returns a non-nil skew timestamp extracted from the
// response instead of an access token.
func (p *TokenProvider) exchangeOnce(ctx cancel.Context, timestamp time.Time) (*oauth2.Token, *time.Time, error) {
	body := map[string]interface{}{"grantType": "client_credentials"}
	if p.cfg.Scope != "" {
		body["scope"] = p.cfg.Scope
	}
	payload, err := gojson.Marshal(body)
	if err != nil {
		return nil, nil, olperror.Wrap(olperror.Unknown, err, "encode token request body")
	}

	url := p.endpoint + "/oauth2/token"
	authHeader, err := p.signer.Sign(http.MethodPost, url, timestamp)
	if err != nil {
		return nil, nil, olperror.Wrap(olperror.Unknown, err, "sign token request")
	}

	req := &transport.Request{
		Method: http.MethodPost,
		URL:    url,
		Body:   payload,
		Headers: transport.Headers{}.
			Add("Authorization", authHeader).
			Add("Content-Type", "application/json"),
	}

	requestID, future := p.http.Send(req)
	release := ctx.Attach(func() { p.http.Cancel(requestID) })
	if release.AlreadyCancelled {
		return nil, nil, cancel.ErrCancelled
	}
	defer ctx.Detach(release.ID)

	resp, err := future.Wait(ctx)
	if err != nil {
		return nil, nil, olperror.Wrap(olperror.NetworkConnection, err, "token request transport error")
	}

	if resp.Status == http.StatusOK {
		var ok tokenResponseBody
		if err := gojson.Unmarshal(resp.Body, &ok); err != nil {
			return nil, nil, olperror.Wrap(olperror.Unknown, err, "decode token response")
		}
		return &oauth2.Token{
			AccessToken: ok.AccessToken,
			TokenType:   "Bearer",
			Expiry:      p.clock.Now().Add(time.Duration(ok.ExpiresIn) * time.Second),
		}, nil, nil
	}

	if resp.Status == http.StatusUnauthorized {
		var errBody errorResponseBody
		if jsonErr := gojson.Unmarshal(resp.Body, &errBody); jsonErr == nil && errBody.ErrorCode == errWrongTimestamp {
			if skew, ok := parseDateHeader(resp.Headers.Get("Date")); ok {
				return nil, &skew, nil
			}
			return nil, nil, olperror.New(olperror.AccessDenied, "clock skew reported but no server timestamp available")
		}
		return nil, nil, olperror.New(olperror.AccessDenied, "token request rejected").WithStatus(resp.Status)
	}

	return nil, nil, olperror.New(olperror.FromHTTPStatus(resp.Status), "token request failed").WithStatus(resp.Status)
}

func parseDateHeader(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
