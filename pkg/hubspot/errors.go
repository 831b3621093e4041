package hubspot

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnauthorized  = errors.New("hubspot: invalid or expired credentials")
	ErrForbidden     = errors.New("hubspot: access forbidden")
	ErrNotFound      = errors.New("hubspot: resource not found")
	ErrRateLimited   = errors.New("hubspot: rate limited")
	ErrUpstreamError = errors.New("hubspot: upstream error (5xx)")
	ErrBadResponse   = errors.New("hubspot: malformed response")
	ErrUnavailable   = errors.New("hubspot: host unreachable or transport failure")
)

// APIError wraps a sentinel with request context for logging and retries.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("hubspot: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

func sentinelForStatus(status int) error {
	switch {
	case status == 401:
		return ErrUnauthorized
	case status == 403:
		return ErrForbidden
	case status == 404:
		return ErrNotFound
	case status == 429:
		return ErrRateLimited
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrBadResponse
	}
}

// retryable reports whether a failed request is worth another attempt.
// Auth and not-found errors never heal on retry.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrUnavailable)
}
