package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusNotFound, KindInvalidRequest},
		{http.StatusUnprocessableEntity, KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.code), func(t *testing.T) {
			if got := KindForStatus(tt.code); got != tt.want {
				t.Errorf("KindForStatus(%d) = %s, want %s", tt.code, got, tt.want)
			}
		})
	}
}

func TestErrorKindRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindTransient, true},
		{KindRateLimited, true},
		{KindInvalidRequest, false},
		{KindAuth, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Run("classified error", func(t *testing.T) {
		err := &Error{Provider: "open-meteo", Kind: KindAuth, StatusCode: 401}
		if got := KindOf(err); got != KindAuth {
			t.Errorf("KindOf = %s, want auth", got)
		}
	})

	t.Run("wrapped classified error", func(t *testing.T) {
		inner := &Error{Provider: "meteostat", Kind: KindRateLimited, StatusCode: 429}
		err := fmt.Errorf("fetch segment: %w", inner)
		if got := KindOf(err); got != KindRateLimited {
			t.Errorf("KindOf = %s, want rate_limited", got)
		}
	})

	t.Run("plain error defaults to transient", func(t *testing.T) {
		if got := KindOf(errors.New("connection refused")); got != KindTransient {
			t.Errorf("KindOf = %s, want transient", got)
		}
	})
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: timeout")
	err := &Error{Provider: "open-meteo", Kind: KindTransient, Message: "request failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is could not reach the wrapped error")
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
