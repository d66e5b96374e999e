package visa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError is a non-2xx response from the vendor. Message is the vendor's
// own error text when the body is JSON, otherwise the raw body.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
	Body       string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "visa: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

// DecodeError is a 2xx response whose body did not match the endpoint's
// schema. Body keeps the raw text for diagnosis.
type DecodeError struct {
	StatusCode int
	Path       string
	Body       string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("visa: decode %s (HTTP %d): %v", e.Path, e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigError means the client cannot be used at all: missing credentials,
// unreadable certificates. It is never retried.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("visa: configuration %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("visa: configuration %s is required", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError wraps a failure to get any HTTP response at all.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("visa: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a vendor 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsRejected reports whether the vendor definitively refused the request:
// any 4xx other than 429. Resending the same request will not help.
func IsRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429
}

// IsTransient reports whether err is worth retrying: connection failures,
// timeouts, 429 and 5xx. Configuration, decode and 4xx errors are permanent.
// Cancellation by the caller is not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	var cfgErr *ConfigError
	var decErr *DecodeError
	if errors.As(err, &cfgErr) || errors.As(err, &decErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

// IsTimeout reports whether err was caused by a per-call deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
