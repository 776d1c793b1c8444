// Package provider implements the historical-weather provider clients
// and the error/retry machinery shared between them. Two providers are
// supported: the free Open-Meteo archive API and the metered Meteostat
// API, each with its own span limit, concurrency cap, and call budget.
package provider

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// Prometheus metrics shared by all provider clients.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_provider_requests_total",
		Help: "Physical provider calls by provider and status",
	}, []string{"provider", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_provider_request_duration_seconds",
		Help:    "Provider call duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_provider_errors_total",
		Help: "Provider call errors by provider and kind",
	}, []string{"provider", "kind"})
)

// Profile holds a provider's read-only constants. One instance per
// provider, created at startup and safe for unsynchronized reads.
type Profile struct {
	// ID identifies the provider in orders, outcomes, and metrics.
	ID string

	// MaxSpanDays is the hard per-request day-span ceiling.
	MaxSpanDays int

	// MaxConcurrent caps simultaneous in-flight calls to this provider.
	MaxConcurrent int

	// WindowCalls is the call budget per Window. Zero means unlimited.
	WindowCalls int

	// Window is the quota period for WindowCalls.
	Window time.Duration

	// Timeout bounds each physical network call.
	Timeout time.Duration
}

// UsageRecorder receives one notification per physical network call.
// *quota.Tracker satisfies this.
type UsageRecorder interface {
	RecordUsage(provider string)
}

// Client is the capability every provider implements: fetch the daily
// records for one segment. A call maps to exactly one physical network
// request; retries are owned by the coordinator. Implementations report
// usage to the UsageRecorder once per physical call, success or failure,
// and return *Error values classified per the taxonomy in errors.go.
type Client interface {
	Profile() Profile
	FetchSegment(ctx context.Context, loc weather.Location, r weather.DateRange, params []weather.Parameter) ([]weather.DailyRecord, error)
}

// noopRecorder is used when no usage recorder is configured.
type noopRecorder struct{}

func (noopRecorder) RecordUsage(string) {}
