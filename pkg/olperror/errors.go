// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 the olp-sdk-go authors
// https://github.com/geodata-platform/olp-sdk-go

// Package olperror defines the error kinds shared by every component of the
// request pipeline. Components return errors by value; the request executor
// maps transport and HTTP-status failures onto these kinds and never
// translates a Cancelled error into any other kind.
package olperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error the way callers across the SDK need to branch on:
// is it retryable, is it a cache problem, was it cancellation.
type Kind string

const (
	Cancelled          Kind = "Cancelled"
	RequestTimeout     Kind = "RequestTimeout"
	NetworkConnection  Kind = "NetworkConnection"
	AccessDenied       Kind = "AccessDenied"
	ServiceUnavailable Kind = "ServiceUnavailable"
	InvalidArgument    Kind = "InvalidArgument"
	PreconditionFailed Kind = "PreconditionFailed"
	NotFound           Kind = "NotFound"
	CacheFull          Kind = "CacheFull"
	CacheIO            Kind = "CacheIO"
	PathInUse          Kind = "PathInUse"
	AlreadyOpen        Kind = "AlreadyOpen"
	NotOpen            Kind = "NotOpen"
	Unknown            Kind = "Unknown"
)

// Error is the user-visible failure type returned across package boundaries:
// a kind to branch on, an optional HTTP status, and a human-readable message.
type Error struct {
	Kind       Kind
	HTTPStatus int // 0 when not applicable
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no HTTP status and no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithStatus returns a copy of the error carrying the given HTTP status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Unknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Unknown
}

// FromHTTPStatus maps a response status to the error kind the executor
// should attribute a non-2xx response to, absent a more specific signal
// (such as a clock-skew 401, which callers detect before calling this).
func FromHTTPStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return AccessDenied
	case status == http.StatusRequestTimeout:
		return RequestTimeout
	case status == http.StatusNotFound:
		return NotFound
	case status >= 500:
		return ServiceUnavailable
	case status >= 400:
		return InvalidArgument
	default:
		return Unknown
	}
}

// IsRetryableKind reports whether the default retry_condition should retry a
// response that produced this kind: transport failures, request timeouts and
// server-side unavailability, but never cancellation or client-side errors.
func IsRetryableKind(k Kind) bool {
	switch k {
	case NetworkConnection, RequestTimeout, ServiceUnavailable:
		return true
	default:
		return false
	}
}
