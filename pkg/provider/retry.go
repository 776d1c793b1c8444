package provider

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry decisions.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_retries_total",
		Help: "Retry attempts by error kind",
	}, []string{"kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_retry_exhausted_total",
		Help: "Segments that exhausted their retry budget by error kind",
	}, []string{"kind"})
)

// RetryConfig holds backoff parameters for one error kind.
type RetryConfig struct {
	// MaxAttempts counts the initial request plus retries.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier scales the delay between attempts.
	BackoffMultiplier float64
}

// DefaultRetryConfig is used for kinds without a dedicated config.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForKind returns the backoff parameters for an error kind.
// Rate-limit responses back off longer than plain server errors.
func RetryConfigForKind(kind ErrorKind) RetryConfig {
	switch kind {
	case KindTransient:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        15 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case KindRateLimited:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// RetryPolicy decides whether a failed attempt should be retried and
// how long to wait first. It is stateless and safe for concurrent use.
type RetryPolicy struct {
	// Configs overrides the per-kind defaults when non-nil.
	Configs map[ErrorKind]RetryConfig
}

// DefaultRetryPolicy uses RetryConfigForKind for every kind.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

func (p RetryPolicy) configFor(kind ErrorKind) RetryConfig {
	if cfg, ok := p.Configs[kind]; ok {
		return cfg
	}
	return RetryConfigForKind(kind)
}

// Decide reports whether attempt number `attempt` (1-based) of a call
// that failed with `kind` should be retried, and the backoff to wait
// before the next attempt. The backoff is exponential with ±20% jitter
// so concurrent segments do not retry in lockstep.
func (p RetryPolicy) Decide(attempt int, kind ErrorKind) (bool, time.Duration) {
	if !kind.Retryable() {
		return false, 0
	}
	cfg := p.configFor(kind)
	if attempt >= cfg.MaxAttempts {
		retryExhaustedTotal.WithLabelValues(string(kind)).Inc()
		return false, 0
	}

	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
			break
		}
	}

	// ±20% jitter
	delay := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

	retriesTotal.WithLabelValues(string(kind)).Inc()
	retryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())
	return true, delay
}

// SleepContext waits for d unless ctx is cancelled first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
