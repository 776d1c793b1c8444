// Package planner splits a requested date range into ordered,
// non-overlapping segments sized to a provider's per-call span limit.
package planner

import (
	"errors"
	"fmt"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// DefaultMaxRangeDays caps the total requested span. 55 years covers the
// longest trend analysis the application offers.
const DefaultMaxRangeDays = 55 * 366

// ErrInvalidRange is returned when the request range fails the
// precondition check. It is never retried.
var ErrInvalidRange = errors.New("invalid date range")

// Segment is one provider-sized sub-span of the requested range.
// Segments are contiguous, non-overlapping, and cover the range exactly.
type Segment struct {
	Range weather.DateRange
}

// Planner validates and splits request ranges. The zero value uses
// DefaultMaxRangeDays.
type Planner struct {
	// MaxRangeDays is the absolute ceiling on the total requested span.
	MaxRangeDays int
}

// Plan splits [r.Start, r.End] into consecutive segments of at most
// maxSpanDays days each; the final segment may be shorter. Spans are
// maximized greedily so the call count is minimal.
//
// Plan is a pure function: deterministic, no I/O, no shared state.
func (p Planner) Plan(r weather.DateRange, maxSpanDays int) ([]Segment, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: start %s after end %s", ErrInvalidRange, r.Start, r.End)
	}
	ceiling := p.MaxRangeDays
	if ceiling <= 0 {
		ceiling = DefaultMaxRangeDays
	}
	if days := r.Days(); days > ceiling {
		return nil, fmt.Errorf("%w: %d days exceeds the %d day ceiling", ErrInvalidRange, days, ceiling)
	}
	if maxSpanDays < 1 {
		return nil, fmt.Errorf("%w: max span per call must be at least one day, got %d", ErrInvalidRange, maxSpanDays)
	}
	return Split(r, maxSpanDays), nil
}

// Split applies the greedy splitting rule without the range-ceiling
// check. The coordinator reuses it to subdivide a segment on the fly
// when a fallback provider has a smaller span limit.
func Split(r weather.DateRange, maxSpanDays int) []Segment {
	if !r.Valid() || maxSpanDays < 1 {
		return nil
	}
	segments := make([]Segment, 0, (r.Days()+maxSpanDays-1)/maxSpanDays)
	start := r.Start
	for !start.After(r.End) {
		end := start.AddDays(maxSpanDays - 1)
		if end.After(r.End) {
			end = r.End
		}
		segments = append(segments, Segment{Range: weather.DateRange{Start: start, End: end}})
		start = end.AddDays(1)
	}
	return segments
}
