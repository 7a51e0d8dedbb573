package api

import (
	"errors"
	"fmt"
)

// Kind classifies a request failure so callers can pick a recovery path
// without matching on status codes or error strings.
type Kind string

const (
	// KindNetwork covers transport failures: no response arrived.
	KindNetwork Kind = "network"
	// KindUnauthorized is HTTP 401: the token is missing or expired.
	KindUnauthorized Kind = "unauthorized"
	// KindRateLimited is HTTP 429: the daily swipe quota ran out.
	KindRateLimited Kind = "rate_limited"
	// KindNotFound is HTTP 404.
	KindNotFound Kind = "not_found"
	// KindUnknown covers everything else, including malformed responses.
	KindUnknown Kind = "unknown"
)

// Error is a tagged request failure produced at the REST boundary.
type Error struct {
	Kind       Kind
	StatusCode int
	// Message is the server-provided human-readable message, when any.
	Message string
	err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("api: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("api: %s (HTTP %d)", e.Kind, e.StatusCode)
	case e.err != nil:
		return fmt.Sprintf("api: %s: %v", e.Kind, e.err)
	default:
		return fmt.Sprintf("api: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the failure kind from err, or KindUnknown when err was
// not produced by this package.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err is an HTTP 401 failure.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsRateLimited reports whether err is an HTTP 429 failure.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }
