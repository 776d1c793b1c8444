// Package merge assembles segment outcomes into one ordered, gap-free
// (or explicitly gapped) daily series covering the requested range.
package merge

import (
	"fmt"

	"github.com/matt1111-hash/meteo-analytics/pkg/coordinator"
	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// Merge concatenates the records of successful outcomes in segment
// order and turns failed or cancelled segments into gap entries. A
// boundary date served by two adjacent segments keeps the earlier
// segment's record (first-writer-wins). Days inside a successful
// segment for which the provider returned nothing become
// provider_data_missing gaps.
//
// The returned series always covers originalRange exactly: every day
// appears either as a record or inside exactly one gap. A violation of
// that invariant is a programming error and is returned as a non-nil
// error; it is not a degraded result the caller should handle.
//
// Merge is deterministic: the same outcome list yields an identical
// series.
func Merge(outcomes []coordinator.SegmentOutcome, originalRange weather.DateRange) (weather.MergedSeries, error) {
	series := weather.MergedSeries{Range: originalRange}
	if !originalRange.Valid() {
		return series, fmt.Errorf("merge: invalid original range %s", originalRange)
	}

	recordFor := make(map[weather.Date]weather.DailyRecord)
	reasonFor := make(map[weather.Date]weather.GapReason)

	for _, outcome := range outcomes {
		span, ok := outcome.Segment.Range.Intersect(originalRange)
		if !ok {
			return series, fmt.Errorf("merge: segment %s outside requested range %s",
				outcome.Segment.Range, originalRange)
		}

		switch outcome.Status {
		case coordinator.StatusSuccess:
			for _, rec := range outcome.Records {
				if !span.Contains(rec.Date) {
					continue
				}
				// First writer wins on duplicated boundary dates.
				if _, seen := recordFor[rec.Date]; seen {
					continue
				}
				recordFor[rec.Date] = rec
			}
		case coordinator.StatusFailed, coordinator.StatusCancelled:
			reason := outcome.Reason
			if reason == "" {
				reason = weather.GapAllProvidersFailed
			}
			for _, d := range span.Dates() {
				if _, seen := reasonFor[d]; !seen {
					reasonFor[d] = reason
				}
			}
		default:
			return series, fmt.Errorf("merge: unknown outcome status %q", outcome.Status)
		}
	}

	for _, d := range originalRange.Dates() {
		rec, haveRecord := recordFor[d]
		if haveRecord {
			series.Records = append(series.Records, rec)
			continue
		}
		reason, haveReason := reasonFor[d]
		if !haveReason {
			// Inside a successful segment but absent from its records.
			reason = weather.GapProviderDataMissing
		}
		series.Gaps = appendGapDay(series.Gaps, d, reason)
	}

	if got := len(series.Records) + series.GapDays(); got != originalRange.Days() {
		return series, fmt.Errorf("merge: coverage invariant violated: %d records + %d gap days != %d range days",
			len(series.Records), series.GapDays(), originalRange.Days())
	}
	return series, nil
}

// appendGapDay extends the last gap when the day is consecutive and the
// reason matches, otherwise starts a new gap.
func appendGapDay(gaps []weather.Gap, d weather.Date, reason weather.GapReason) []weather.Gap {
	if n := len(gaps); n > 0 {
		last := &gaps[n-1]
		if last.Reason == reason && last.Range.End.AddDays(1) == d {
			last.Range.End = d
			return gaps
		}
	}
	return append(gaps, weather.Gap{
		Range:  weather.DateRange{Start: d, End: d},
		Reason: reason,
	})
}
