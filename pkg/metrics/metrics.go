// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package metrics exposes Prometheus instrumentation for the request
// pipeline: cache hit/miss ratios, token refresh activity, lookup
// resolution, and the retried/coalesced/circuit-broken executor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics, labeled by tier ("memory", "mutable", "protected").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olp_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olp_cache_misses_total",
			Help: "Total number of cache misses by tier",
		},
		[]string{"tier"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "olp_cache_evictions_total",
			Help: "Total number of LRU evictions from the memory or mutable tier",
		},
	)

	CacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "olp_cache_bytes",
			Help: "Current number of bytes charged against a cache tier's budget",
		},
		[]string{"tier"},
	)

	// Token provider metrics.
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olp_token_refresh_total",
			Help: "Total number of OAuth2 token refresh attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "olp_token_refresh_duration_seconds",
			Help:    "Duration of a token refresh exchange, including any clock-skew re-issue",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API lookup metrics.
	LookupCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "olp_lookup_cache_hits_total",
			Help: "Total number of API lookup resolutions served from cache",
		},
	)

	LookupCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "olp_lookup_cache_misses_total",
			Help: "Total number of API lookup resolutions that found no fresh cache entry",
		},
	)

	// Request executor metrics.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "olp_request_duration_seconds",
			Help:    "Duration of a high-level Fetch call, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "outcome"}, // outcome: "success", "cancelled", "failed"
	)

	RequestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "olp_request_retries_total",
			Help: "Total number of retried request attempts",
		},
		[]string{"service"},
	)

	RequestCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "olp_request_coalesced_total",
			Help: "Total number of fetches that observed a concurrent call's result instead of issuing their own",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "olp_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordCacheHit increments the hit counter for tier.
func RecordCacheHit(tier string) {
	CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss increments the miss counter for tier.
func RecordCacheMiss(tier string) {
	CacheMisses.WithLabelValues(tier).Inc()
}

// RecordTokenRefresh records the outcome and duration of one refresh exchange.
func RecordTokenRefresh(result string, duration time.Duration) {
	TokenRefreshTotal.WithLabelValues(result).Inc()
	TokenRefreshDuration.Observe(duration.Seconds())
}

// RecordRequest records the outcome and duration of one Fetch call.
func RecordRequest(service, outcome string, duration time.Duration) {
	RequestDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

// breakerStateValue maps a breaker state name to the gauge encoding used by
// CircuitBreakerState.
func breakerStateValue(name string) float64 {
	switch name {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordCircuitBreakerStateChange updates the breaker state gauge for name.
func RecordCircuitBreakerStateChange(name, toState string) {
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(toState))
}
