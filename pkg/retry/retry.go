// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package retry holds the RetrySettings value type and the default
// exponential backoff strategy, built on cenkalti/backoff/v4 rather than
// hand-rolling jitter math.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffStrategy computes the delay before attempt number attempt (1-based)
// given the configured initial backoff.
type BackoffStrategy func(initial time.Duration, attempt uint) time.Duration

// RetryCondition reports whether a completed HTTP response (identified here
// only by status code, since that's all the default strategies need) should
// be retried. Transport errors are always retried regardless of this.
type RetryCondition func(statusCode int) bool

// Settings configures retry and backoff behavior for one request executor.
type Settings struct {
	MaxAttempts       uint
	InitialBackoff    time.Duration
	BackoffStrategy   BackoffStrategy
	RetryCondition    RetryCondition
	TimeoutPerAttempt time.Duration
}

// DefaultSettings returns the settings used when a caller doesn't supply
// their own: three attempts, exponential backoff, retry on 408/5xx.
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		BackoffStrategy:   ExponentialBackoff,
		RetryCondition:    DefaultRetryCondition,
		TimeoutPerAttempt: 30 * time.Second,
	}
}

// ExponentialBackoff delegates to backoff.ExponentialBackOff, seeded with
// initial as its InitialInterval, so the jitter and multiplier tuning the
// library already gets right isn't reimplemented here.
func ExponentialBackoff(initial time.Duration, attempt uint) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	eb.MaxInterval = 30 * time.Second

	var d time.Duration
	for i := uint(0); i < attempt; i++ {
		d = eb.NextBackOff()
	}
	if d == backoff.Stop {
		return eb.MaxInterval
	}
	return d
}

// DefaultRetryCondition retries 408 Request Timeout and any 5xx response.
func DefaultRetryCondition(statusCode int) bool {
	return statusCode == 408 || statusCode >= 500
}
