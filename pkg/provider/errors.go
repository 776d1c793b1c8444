package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures for retry and fallback
// decisions.
type ErrorKind string

const (
	// KindTransient covers network failures, timeouts, and 5xx responses.
	// Retried with backoff.
	KindTransient ErrorKind = "transient"

	// KindRateLimited is a provider-reported 429. Retried with a longer
	// backoff; exhaustion triggers fallback.
	KindRateLimited ErrorKind = "rate_limited"

	// KindInvalidRequest covers 4xx responses other than 401/403/429.
	// Fatal for the provider; never retried.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindAuth covers 401/403 and missing credentials. Fatal for the
	// provider; never retried.
	KindAuth ErrorKind = "auth"
)

// Retryable reports whether failures of this kind may be retried
// against the same provider.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

// Unwrap supports errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status code to an ErrorKind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindInvalidRequest
	default:
		return KindTransient
	}
}

// KindOf extracts the ErrorKind from any error returned by a Client.
// Context cancellations are reported as-is by convention; everything
// unclassified (raw network errors included) counts as transient.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}
