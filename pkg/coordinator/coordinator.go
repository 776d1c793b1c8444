// Package coordinator schedules segment fetches with bounded
// concurrency, applies the retry policy, and falls a failed segment
// through the ordered provider candidates. Outcomes come back in the
// original segment order regardless of completion order.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/matt1111-hash/meteo-analytics/pkg/cache"
	"github.com/matt1111-hash/meteo-analytics/pkg/planner"
	"github.com/matt1111-hash/meteo-analytics/pkg/provider"
	"github.com/matt1111-hash/meteo-analytics/pkg/quota"
	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// Prometheus metrics for segment scheduling.
var (
	segmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_segments_total",
		Help: "Segment outcomes by provider and status",
	}, []string{"provider", "status"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_fallbacks_total",
		Help: "Segments that fell through to another provider",
	}, []string{"from", "to"})
)

// Status tags a segment outcome.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// SegmentOutcome is the terminal result of one segment.
type SegmentOutcome struct {
	Segment planner.Segment

	Status Status

	// Provider is the id that actually served the segment (success only).
	Provider string

	// Records are the fetched days (success only), ascending by date.
	Records []weather.DailyRecord

	// Reason categorizes the gap for failed/cancelled segments.
	Reason weather.GapReason

	// Err is the last provider error for failed segments.
	Err error
}

// Config holds coordinator settings.
type Config struct {
	// MaxInFlight bounds simultaneous segment fetches across all
	// providers. It should not exceed any single provider's own
	// concurrency cap plus the others' combined.
	MaxInFlight int
}

// DefaultConfig returns a safe default.
func DefaultConfig() Config {
	return Config{MaxInFlight: 5}
}

// Coordinator executes planned segments against providers.
type Coordinator struct {
	clients map[string]provider.Client
	tracker *quota.Tracker
	retry   provider.RetryPolicy
	cache   *cache.Manager
	config  Config
	logger  zerolog.Logger
}

// New creates a coordinator. The cache manager may be nil to disable
// segment caching.
func New(clients []provider.Client, tracker *quota.Tracker, retry provider.RetryPolicy, cacheManager *cache.Manager, config Config, logger zerolog.Logger) *Coordinator {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultConfig().MaxInFlight
	}
	byID := make(map[string]provider.Client, len(clients))
	for _, c := range clients {
		byID[c.Profile().ID] = c
	}
	return &Coordinator{
		clients: byID,
		tracker: tracker,
		retry:   retry,
		cache:   cacheManager,
		config:  config,
		logger:  logger.With().Str("component", "coordinator").Logger(),
	}
}

// Execute fetches all segments with bounded concurrency and per-segment
// provider fallback. The returned slice matches the input order.
//
// Cancellation is cooperative: it is checked before each segment starts
// and propagated into in-flight calls, quota waits, and backoff delays.
// Execute never fails on cancellation; segments not yet started come
// back as StatusCancelled and completed outcomes are retained.
//
// notify, when non-nil, is invoked once per terminal segment outcome
// from worker goroutines.
func (c *Coordinator) Execute(ctx context.Context, segments []planner.Segment, order []string, loc weather.Location, params []weather.Parameter, notify func(SegmentOutcome)) []SegmentOutcome {
	outcomes := make([]SegmentOutcome, len(segments))
	if len(segments) == 0 {
		return outcomes
	}

	jobs := make(chan int, len(segments))
	for i := range segments {
		jobs <- i
	}
	close(jobs)

	workers := c.config.MaxInFlight
	if workers > len(segments) {
		workers = len(segments)
	}

	c.logger.Info().
		Int("segments", len(segments)).
		Int("workers", workers).
		Strs("provider_order", order).
		Msg("Starting segment fetch")

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				var outcome SegmentOutcome
				if ctx.Err() != nil {
					outcome = SegmentOutcome{
						Segment: segments[idx],
						Status:  StatusCancelled,
						Reason:  weather.GapCancelled,
					}
					segmentsTotal.WithLabelValues("none", string(StatusCancelled)).Inc()
				} else {
					outcome = c.fetchSegment(ctx, segments[idx], order, loc, params)
				}
				outcomes[idx] = outcome
				if notify != nil {
					notify(outcome)
				}
			}
		}()
	}
	wg.Wait()

	return outcomes
}

// fetchSegment walks the provider candidates for one segment.
func (c *Coordinator) fetchSegment(ctx context.Context, seg planner.Segment, order []string, loc weather.Location, params []weather.Parameter) SegmentOutcome {
	var lastErr error
	quotaOnly := true
	prev := ""

	for _, id := range order {
		client, ok := c.clients[id]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return c.cancelledOutcome(seg)
		}
		if prev != "" {
			fallbacksTotal.WithLabelValues(prev, id).Inc()
			c.logger.Info().
				Str("segment", seg.Range.String()).
				Str("from", prev).
				Str("to", id).
				Msg("Falling back to next provider")
		}
		prev = id

		records, err := c.fetchWithProvider(ctx, client, seg.Range, loc, params)
		if err == nil {
			sort.Slice(records, func(i, j int) bool {
				return records[i].Date.Before(records[j].Date)
			})
			segmentsTotal.WithLabelValues(id, string(StatusSuccess)).Inc()
			return SegmentOutcome{
				Segment:  seg,
				Status:   StatusSuccess,
				Provider: id,
				Records:  records,
			}
		}
		if ctx.Err() != nil {
			return c.cancelledOutcome(seg)
		}

		lastErr = err
		if !errors.Is(err, quota.ErrQuotaExceeded) {
			quotaOnly = false
		}
		c.logger.Warn().
			Err(err).
			Str("segment", seg.Range.String()).
			Str("provider", id).
			Msg("Provider failed segment")
	}

	reason := weather.GapAllProvidersFailed
	if quotaOnly && lastErr != nil {
		reason = weather.GapQuotaExhausted
	}
	segmentsTotal.WithLabelValues("none", string(StatusFailed)).Inc()
	return SegmentOutcome{
		Segment: seg,
		Status:  StatusFailed,
		Reason:  reason,
		Err:     lastErr,
	}
}

// fetchWithProvider fetches one segment from one provider, subdividing
// on the fly when the segment exceeds the provider's span limit. Any
// piece failing after retry exhaustion fails the whole provider attempt.
func (c *Coordinator) fetchWithProvider(ctx context.Context, client provider.Client, r weather.DateRange, loc weather.Location, params []weather.Parameter) ([]weather.DailyRecord, error) {
	profile := client.Profile()

	pieces := []planner.Segment{{Range: r}}
	if r.Days() > profile.MaxSpanDays {
		pieces = planner.Split(r, profile.MaxSpanDays)
	}

	var records []weather.DailyRecord
	for _, piece := range pieces {
		recs, err := c.fetchPiece(ctx, client, profile, piece.Range, loc, params)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// fetchPiece runs the retry loop around physical calls for one
// provider-sized span. Each attempt holds a concurrency slot only for
// the duration of its network call.
func (c *Coordinator) fetchPiece(ctx context.Context, client provider.Client, profile provider.Profile, r weather.DateRange, loc weather.Location, params []weather.Parameter) ([]weather.DailyRecord, error) {
	key := cache.Key{
		Provider:   profile.ID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Range:      r,
		Parameters: params,
	}
	if c.cache != nil {
		if recs, err := c.cache.Get(ctx, key); err == nil {
			return recs, nil
		}
	}

	attempt := 0
	for {
		attempt++

		permit, err := c.tracker.Reserve(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		recs, err := client.FetchSegment(ctx, loc, r, params)
		permit.Release()

		if err == nil {
			if c.cache != nil {
				if cacheErr := c.cache.Set(ctx, key, recs); cacheErr != nil {
					c.logger.Warn().Err(cacheErr).Msg("Failed to cache segment")
				}
			}
			if attempt > 1 {
				c.logger.Info().
					Str("provider", profile.ID).
					Str("span", r.String()).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return recs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := provider.KindOf(err)
		retry, delay := c.retry.Decide(attempt, kind)
		if !retry {
			return nil, err
		}
		c.logger.Debug().
			Str("provider", profile.ID).
			Str("span", r.String()).
			Str("kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying after backoff")
		if err := provider.SleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Coordinator) cancelledOutcome(seg planner.Segment) SegmentOutcome {
	segmentsTotal.WithLabelValues("none", string(StatusCancelled)).Inc()
	return SegmentOutcome{
		Segment: seg,
		Status:  StatusCancelled,
		Reason:  weather.GapCancelled,
	}
}
