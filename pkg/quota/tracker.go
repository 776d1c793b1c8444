// Package quota enforces per-provider limits: a concurrency cap on
// simultaneous in-flight calls and a call budget per rolling window.
// All counters live in memory for the process lifetime and every
// mutation is serialized through one mutex.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weather_quota_remaining",
		Help: "Calls remaining in the current quota window by provider",
	}, []string{"provider"})

	quotaBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_quota_blocks_total",
		Help: "Reservations rejected because the quota window was exhausted",
	}, []string{"provider"})

	inflightCalls = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weather_inflight_calls",
		Help: "Provider calls currently holding a concurrency slot",
	}, []string{"provider"})
)

// ErrQuotaExceeded is returned by Reserve when the provider's window
// budget is exhausted. The provider is unavailable until the window
// resets; callers should fall back to another provider instead of
// waiting.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrUnknownProvider is returned for providers never registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Limits holds the per-provider constraints enforced by the tracker.
type Limits struct {
	// MaxConcurrent caps simultaneous in-flight calls. Must be >= 1.
	MaxConcurrent int

	// WindowCalls is the call budget per window. Zero means unlimited.
	WindowCalls int

	// Window is the budget period, e.g. 30 days for a monthly plan.
	Window time.Duration
}

type providerState struct {
	limits      Limits
	slots       chan struct{}
	used        int
	windowStart time.Time
}

// Tracker owns all mutable quota state. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	providers map[string]*providerState
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		providers: make(map[string]*providerState),
		logger:    logger.With().Str("component", "quota").Logger(),
		now:       time.Now,
	}
}

// Register adds a provider with its limits. Registering twice replaces
// the limits but keeps the usage counter.
func (t *Tracker) Register(provider string, limits Limits) {
	if limits.MaxConcurrent < 1 {
		limits.MaxConcurrent = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.providers[provider]; ok {
		st.limits = limits
		return
	}
	t.providers[provider] = &providerState{
		limits:      limits,
		slots:       make(chan struct{}, limits.MaxConcurrent),
		windowStart: t.now(),
	}
	if limits.WindowCalls > 0 {
		quotaRemaining.WithLabelValues(provider).Set(float64(limits.WindowCalls))
	}
}

// Permit represents one held concurrency slot. Release is idempotent.
type Permit struct {
	provider string
	slots    chan struct{}
	once     sync.Once
}

// Release frees the concurrency slot.
func (p *Permit) Release() {
	p.once.Do(func() {
		<-p.slots
		inflightCalls.WithLabelValues(p.provider).Dec()
	})
}

// Reserve obtains a concurrency slot for one physical provider call.
// It fails fast with ErrQuotaExceeded when the window budget is already
// spent, and otherwise blocks cooperatively until a slot frees up or
// ctx is cancelled.
func (t *Tracker) Reserve(ctx context.Context, provider string) (*Permit, error) {
	t.mu.Lock()
	st, ok := t.providers[provider]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	t.rollWindowLocked(provider, st)
	if st.limits.WindowCalls > 0 && st.used >= st.limits.WindowCalls {
		resetAt := st.windowStart.Add(st.limits.Window)
		t.mu.Unlock()
		quotaBlocksTotal.WithLabelValues(provider).Inc()
		t.logger.Warn().
			Str("provider", provider).
			Time("reset_at", resetAt).
			Msg("Quota window exhausted - provider unavailable until reset")
		return nil, fmt.Errorf("%w: %s window resets at %s", ErrQuotaExceeded, provider, resetAt.Format(time.RFC3339))
	}
	slots := st.slots
	t.mu.Unlock()

	select {
	case slots <- struct{}{}:
		inflightCalls.WithLabelValues(provider).Inc()
		return &Permit{provider: provider, slots: slots}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecordUsage counts one physical network call against the provider's
// window budget. Retries count individually; callers invoke this exactly
// once per call, success or failure.
func (t *Tracker) RecordUsage(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[provider]
	if !ok {
		return
	}
	t.rollWindowLocked(provider, st)
	st.used++
	if st.limits.WindowCalls > 0 {
		remaining := st.limits.WindowCalls - st.used
		if remaining < 0 {
			remaining = 0
		}
		quotaRemaining.WithLabelValues(provider).Set(float64(remaining))
	}
}

// State returns a snapshot of a provider's quota counters.
func (t *Tracker) State(provider string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.providers[provider]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	t.rollWindowLocked(provider, st)
	s := State{
		Provider:  provider,
		Used:      st.used,
		Unlimited: st.limits.WindowCalls == 0,
	}
	if !s.Unlimited {
		s.Remaining = st.limits.WindowCalls - st.used
		if s.Remaining < 0 {
			s.Remaining = 0
		}
		s.ResetAt = st.windowStart.Add(st.limits.Window)
	}
	return s, nil
}

// rollWindowLocked resets the usage counter when the window has elapsed.
// Caller must hold t.mu.
func (t *Tracker) rollWindowLocked(provider string, st *providerState) {
	if st.limits.WindowCalls == 0 || st.limits.Window <= 0 {
		return
	}
	now := t.now()
	if now.Sub(st.windowStart) >= st.limits.Window {
		if st.used > 0 {
			t.logger.Info().
				Str("provider", provider).
				Int("calls_used", st.used).
				Msg("Quota window rolled over")
		}
		st.used = 0
		st.windowStart = now
		quotaRemaining.WithLabelValues(provider).Set(float64(st.limits.WindowCalls))
	}
}
