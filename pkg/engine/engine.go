// Package engine is the inbound surface of the acquisition subsystem:
// submit a fetch request, receive progress notifications and the final
// merged series asynchronously, cancel at any time. The caller's
// goroutine is never blocked; each acquisition runs in its own
// goroutine behind a Handle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matt1111-hash/meteo-analytics/pkg/cache"
	"github.com/matt1111-hash/meteo-analytics/pkg/coordinator"
	"github.com/matt1111-hash/meteo-analytics/pkg/merge"
	"github.com/matt1111-hash/meteo-analytics/pkg/planner"
	"github.com/matt1111-hash/meteo-analytics/pkg/provider"
	"github.com/matt1111-hash/meteo-analytics/pkg/quota"
	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// ErrAllSegmentsFailed is the request-level failure: every segment
// failed on every provider. Partial success never produces this.
var ErrAllSegmentsFailed = errors.New("all segments failed on all providers")

// ErrUnknownProvider is returned by Submit for an explicit provider
// preference the engine does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// Progress is one asynchronous progress notification.
type Progress struct {
	HandleID uuid.UUID

	// Completed, Failed, and Cancelled count terminal segments so far.
	Completed int
	Failed    int
	Cancelled int
	Total     int

	// Outcome is the segment that just finished.
	Outcome coordinator.SegmentOutcome
}

// Result is the terminal result of an acquisition.
type Result struct {
	Series weather.MergedSeries

	// Cancelled is true when the acquisition was cut short by the
	// caller. The series still carries every completed segment.
	Cancelled bool

	// Err is set only for request-level failures (precondition or
	// total failure); gaps alone are a valid degraded result.
	Err error
}

// Handle identifies one in-flight acquisition.
type Handle struct {
	ID uuid.UUID

	progress chan Progress
	done     chan Result
	cancel   context.CancelFunc
}

// Progress returns the notification channel. It is closed when the
// acquisition finishes. Consumers may ignore it; the channel is
// buffered for every segment so the engine never blocks on it.
func (h *Handle) Progress() <-chan Progress {
	return h.progress
}

// Done returns the result channel. Exactly one Result is sent, then
// the channel is closed.
func (h *Handle) Done() <-chan Result {
	return h.done
}

// Cancel requests cooperative cancellation. Idempotent; the acquisition
// still terminates with a (possibly partial) Result.
func (h *Handle) Cancel() {
	h.cancel()
}

// Config holds engine settings.
type Config struct {
	// MaxInFlight bounds concurrent segment fetches per acquisition.
	MaxInFlight int

	// MaxRangeDays caps the total requested span.
	MaxRangeDays int

	// DefaultOrder is the provider candidate order for "auto" requests.
	// The free provider first keeps the metered budget for backfill.
	DefaultOrder []string
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:  5,
		MaxRangeDays: planner.DefaultMaxRangeDays,
		DefaultOrder: []string{provider.OpenMeteoID, provider.MeteostatID},
	}
}

// Engine owns the planner → coordinator → merger pipeline and the set
// of live handles.
type Engine struct {
	config  Config
	planner planner.Planner
	coord   *coordinator.Coordinator
	clients map[string]provider.Client
	logger  zerolog.Logger

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// New wires the engine. tracker must have every client's profile
// registered; New does that from the client list. cacheManager may be
// nil.
func New(config Config, clients []provider.Client, tracker *quota.Tracker, retry provider.RetryPolicy, cacheManager *cache.Manager, logger zerolog.Logger) *Engine {
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultConfig().MaxInFlight
	}
	if config.MaxRangeDays <= 0 {
		config.MaxRangeDays = planner.DefaultMaxRangeDays
	}
	byID := make(map[string]provider.Client, len(clients))
	for _, c := range clients {
		p := c.Profile()
		byID[p.ID] = c
		tracker.Register(p.ID, quota.Limits{
			MaxConcurrent: p.MaxConcurrent,
			WindowCalls:   p.WindowCalls,
			Window:        p.Window,
		})
	}
	if len(config.DefaultOrder) == 0 {
		for _, c := range clients {
			config.DefaultOrder = append(config.DefaultOrder, c.Profile().ID)
		}
	}
	return &Engine{
		config:  config,
		planner: planner.Planner{MaxRangeDays: config.MaxRangeDays},
		coord: coordinator.New(clients, tracker, retry, cacheManager,
			coordinator.Config{MaxInFlight: config.MaxInFlight}, logger),
		clients: byID,
		logger:  logger.With().Str("component", "engine").Logger(),
		handles: make(map[uuid.UUID]*Handle),
	}
}

// Submit validates the request, plans it, and starts the acquisition.
// Precondition violations (bad coordinates, unknown parameters, invalid
// or oversized range, unknown provider preference) fail here
// synchronously; everything later is reported through the handle.
func (e *Engine) Submit(req weather.FetchRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	order, err := e.resolveOrder(req.Provider)
	if err != nil {
		return nil, err
	}

	// Segments are sized to the first candidate's span limit; the
	// coordinator re-splits on the fly for smaller fallback limits.
	first := e.clients[order[0]]
	segments, err := e.planner.Plan(req.Range, first.Profile().MaxSpanDays)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:       uuid.New(),
		progress: make(chan Progress, len(segments)+1),
		done:     make(chan Result, 1),
		cancel:   cancel,
	}
	e.mu.Lock()
	e.handles[h.ID] = h
	e.mu.Unlock()

	e.logger.Info().
		Str("handle", h.ID.String()).
		Str("range", req.Range.String()).
		Int("segments", len(segments)).
		Strs("provider_order", order).
		Msg("Acquisition submitted")

	go e.run(ctx, h, req, segments, order)
	return h, nil
}

// Cancel cancels the acquisition with the given handle id. It reports
// whether the handle was known and still running.
func (e *Engine) Cancel(id uuid.UUID) bool {
	e.mu.Lock()
	h, ok := e.handles[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

func (e *Engine) run(ctx context.Context, h *Handle, req weather.FetchRequest, segments []planner.Segment, order []string) {
	defer func() {
		e.mu.Lock()
		delete(e.handles, h.ID)
		e.mu.Unlock()
	}()

	var mu sync.Mutex
	completed, failed, cancelled := 0, 0, 0
	notify := func(outcome coordinator.SegmentOutcome) {
		mu.Lock()
		switch outcome.Status {
		case coordinator.StatusSuccess:
			completed++
		case coordinator.StatusFailed:
			failed++
		case coordinator.StatusCancelled:
			cancelled++
		}
		p := Progress{
			HandleID:  h.ID,
			Completed: completed,
			Failed:    failed,
			Cancelled: cancelled,
			Total:     len(segments),
			Outcome:   outcome,
		}
		mu.Unlock()
		// The channel is buffered for every segment; a lagging consumer
		// loses nothing, an absent one costs nothing.
		select {
		case h.progress <- p:
		default:
		}
	}

	outcomes := e.coord.Execute(ctx, segments, order, req.Location, req.Parameters, notify)
	close(h.progress)

	result := Result{Cancelled: ctx.Err() != nil}
	series, err := merge.Merge(outcomes, req.Range)
	result.Series = series
	if err != nil {
		e.logger.Error().Err(err).Str("handle", h.ID.String()).Msg("Merge invariant violated")
		result.Err = err
	} else if !result.Cancelled && completed == 0 && failed > 0 {
		result.Err = fmt.Errorf("%w: last error: %v", ErrAllSegmentsFailed, lastError(outcomes))
	}

	e.logger.Info().
		Str("handle", h.ID.String()).
		Int("records", len(result.Series.Records)).
		Int("gap_days", result.Series.GapDays()).
		Bool("cancelled", result.Cancelled).
		Msg("Acquisition finished")

	h.done <- result
	close(h.done)
}

func (e *Engine) resolveOrder(preference string) ([]string, error) {
	order := make([]string, 0, len(e.config.DefaultOrder))
	for _, id := range e.config.DefaultOrder {
		if _, ok := e.clients[id]; ok {
			order = append(order, id)
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	if preference == "" || preference == weather.ProviderAuto {
		return order, nil
	}
	if _, ok := e.clients[preference]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, preference)
	}
	reordered := []string{preference}
	for _, id := range order {
		if id != preference {
			reordered = append(reordered, id)
		}
	}
	return reordered, nil
}

func lastError(outcomes []coordinator.SegmentOutcome) error {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Err != nil {
			return outcomes[i].Err
		}
	}
	return nil
}
