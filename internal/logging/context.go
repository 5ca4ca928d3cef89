// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// GenerateCorrelationID returns a short, readable ID for tying together the
// log lines a single request fans out to (lookup, auth, the request
// executor). It is not a UUID in its own right, just the first 8
// characters of one.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a context carrying id, for use with Ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext retrieves the correlation ID stamped by
// ContextWithCorrelationID, or "" if none was set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with the context's correlation ID attached,
// if any.
//
//	logging.Ctx(ctx).Info().Msg("refreshing token")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logger = logger.With().Str("correlation_id", correlationID).Logger()
	}
	return &logger
}

// CtxDebug starts a debug-level message with the context's correlation ID
// attached. Shorthand for Ctx(ctx).Debug().
func CtxDebug(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Debug()
}

// CtxWarn starts a warn-level message with the context's correlation ID
// attached. Shorthand for Ctx(ctx).Warn().
func CtxWarn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}
