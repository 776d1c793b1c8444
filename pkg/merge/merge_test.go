package merge

import (
	"testing"

	"github.com/matt1111-hash/meteo-analytics/pkg/coordinator"
	"github.com/matt1111-hash/meteo-analytics/pkg/planner"
	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

func dr(start, end string) weather.DateRange {
	s, err := weather.ParseDate(start)
	if err != nil {
		panic(err)
	}
	e, err := weather.ParseDate(end)
	if err != nil {
		panic(err)
	}
	return weather.DateRange{Start: s, End: e}
}

// recordsFor fabricates one record per day of r with the given source.
func recordsFor(r weather.DateRange, source string, tmax float64) []weather.DailyRecord {
	var out []weather.DailyRecord
	for _, d := range r.Dates() {
		v := tmax
		out = append(out, weather.DailyRecord{
			Date:   d,
			Source: source,
			Values: map[weather.Parameter]*float64{weather.ParamTempMax: &v},
		})
	}
	return out
}

func success(r weather.DateRange, provider string, records []weather.DailyRecord) coordinator.SegmentOutcome {
	return coordinator.SegmentOutcome{
		Segment:  planner.Segment{Range: r},
		Status:   coordinator.StatusSuccess,
		Provider: provider,
		Records:  records,
	}
}

func failed(r weather.DateRange, reason weather.GapReason) coordinator.SegmentOutcome {
	return coordinator.SegmentOutcome{
		Segment: planner.Segment{Range: r},
		Status:  coordinator.StatusFailed,
		Reason:  reason,
	}
}

// checkCoverage asserts the series coverage invariant and record order.
func checkCoverage(t *testing.T, s weather.MergedSeries) {
	t.Helper()

	if got := len(s.Records) + s.GapDays(); got != s.Range.Days() {
		t.Errorf("records (%d) + gap days (%d) = %d, range has %d days",
			len(s.Records), s.GapDays(), got, s.Range.Days())
	}
	for i := 1; i < len(s.Records); i++ {
		if !s.Records[i-1].Date.Before(s.Records[i].Date) {
			t.Errorf("records out of order at %d: %v then %v",
				i, s.Records[i-1].Date, s.Records[i].Date)
		}
	}
}

func TestMergeAllSuccessful(t *testing.T) {
	full := dr("2020-01-01", "2020-03-31")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-31"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-31"), "open-meteo", 5)),
		success(dr("2020-02-01", "2020-02-29"), "open-meteo", recordsFor(dr("2020-02-01", "2020-02-29"), "open-meteo", 6)),
		success(dr("2020-03-01", "2020-03-31"), "open-meteo", recordsFor(dr("2020-03-01", "2020-03-31"), "open-meteo", 7)),
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !series.Complete() {
		t.Errorf("expected complete series, got gaps %v", series.Gaps)
	}
	if len(series.Records) != full.Days() {
		t.Errorf("got %d records, want %d", len(series.Records), full.Days())
	}
	checkCoverage(t, series)
}

func TestMergeFailedSegmentBecomesGap(t *testing.T) {
	full := dr("2020-01-01", "2020-01-30")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-10"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-10"), "open-meteo", 5)),
		failed(dr("2020-01-11", "2020-01-20"), weather.GapAllProvidersFailed),
		success(dr("2020-01-21", "2020-01-30"), "meteostat", recordsFor(dr("2020-01-21", "2020-01-30"), "meteostat", 6)),
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(series.Gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(series.Gaps), series.Gaps)
	}
	gap := series.Gaps[0]
	if gap.Range != dr("2020-01-11", "2020-01-20") {
		t.Errorf("gap range = %v, want 2020-01-11..2020-01-20", gap.Range)
	}
	if gap.Reason != weather.GapAllProvidersFailed {
		t.Errorf("gap reason = %s, want all_providers_failed", gap.Reason)
	}
	checkCoverage(t, series)
}

func TestMergeBoundaryDuplicateFirstWriterWins(t *testing.T) {
	full := dr("2020-01-01", "2020-01-20")
	// Both segments report the boundary day 2020-01-10.
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-10"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-10"), "open-meteo", 5)),
		success(dr("2020-01-10", "2020-01-20"), "meteostat", recordsFor(dr("2020-01-10", "2020-01-20"), "meteostat", 9)),
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(series.Records) != full.Days() {
		t.Fatalf("got %d records, want %d (boundary deduplicated)", len(series.Records), full.Days())
	}

	boundary, ok := series.At(weather.Date{Year: 2020, Month: 1, Day: 10})
	if !ok {
		t.Fatal("boundary day missing")
	}
	if boundary.Source != "open-meteo" {
		t.Errorf("boundary source = %q, want the earlier segment's open-meteo", boundary.Source)
	}
	if v, _ := boundary.Value(weather.ParamTempMax); v != 5 {
		t.Errorf("boundary value = %v, want the earlier segment's 5", v)
	}
	checkCoverage(t, series)
}

func TestMergeMissingDaysInsideSuccess(t *testing.T) {
	full := dr("2020-01-01", "2020-01-10")
	// Provider answered but skipped two days in the middle.
	partial := append(
		recordsFor(dr("2020-01-01", "2020-01-05"), "open-meteo", 5),
		recordsFor(dr("2020-01-08", "2020-01-10"), "open-meteo", 5)...,
	)
	outcomes := []coordinator.SegmentOutcome{success(full, "open-meteo", partial)}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(series.Gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %v", len(series.Gaps), series.Gaps)
	}
	gap := series.Gaps[0]
	if gap.Range != dr("2020-01-06", "2020-01-07") {
		t.Errorf("gap range = %v, want 2020-01-06..2020-01-07", gap.Range)
	}
	if gap.Reason != weather.GapProviderDataMissing {
		t.Errorf("gap reason = %s, want provider_data_missing", gap.Reason)
	}
	checkCoverage(t, series)
}

func TestMergeAdjacentGapsDifferentReasons(t *testing.T) {
	full := dr("2020-01-01", "2020-01-09")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-03"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-03"), "open-meteo", 5)),
		failed(dr("2020-01-04", "2020-01-06"), weather.GapQuotaExhausted),
		failed(dr("2020-01-07", "2020-01-09"), weather.GapAllProvidersFailed),
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	// Consecutive days with different reasons stay separate gaps.
	if len(series.Gaps) != 2 {
		t.Fatalf("got %d gaps, want 2: %v", len(series.Gaps), series.Gaps)
	}
	if series.Gaps[0].Reason != weather.GapQuotaExhausted {
		t.Errorf("first gap reason = %s", series.Gaps[0].Reason)
	}
	if series.Gaps[1].Reason != weather.GapAllProvidersFailed {
		t.Errorf("second gap reason = %s", series.Gaps[1].Reason)
	}
	checkCoverage(t, series)
}

func TestMergeCancelledSegments(t *testing.T) {
	full := dr("2020-01-01", "2020-01-06")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-03"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-03"), "open-meteo", 5)),
		{
			Segment: planner.Segment{Range: dr("2020-01-04", "2020-01-06")},
			Status:  coordinator.StatusCancelled,
			Reason:  weather.GapCancelled,
		},
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(series.Gaps) != 1 || series.Gaps[0].Reason != weather.GapCancelled {
		t.Errorf("gaps = %v, want one cancelled gap", series.Gaps)
	}
	checkCoverage(t, series)
}

func TestMergeDeterministic(t *testing.T) {
	full := dr("2020-01-01", "2020-01-20")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-01-01", "2020-01-10"), "open-meteo", recordsFor(dr("2020-01-01", "2020-01-10"), "open-meteo", 5)),
		failed(dr("2020-01-11", "2020-01-15"), weather.GapAllProvidersFailed),
		success(dr("2020-01-16", "2020-01-20"), "meteostat", recordsFor(dr("2020-01-16", "2020-01-20"), "meteostat", 6)),
	}

	a, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	b, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(a.Records) != len(b.Records) || len(a.Gaps) != len(b.Gaps) {
		t.Fatalf("results differ in shape: %d/%d records, %d/%d gaps",
			len(a.Records), len(b.Records), len(a.Gaps), len(b.Gaps))
	}
	for i := range a.Records {
		if a.Records[i].Date != b.Records[i].Date || a.Records[i].Source != b.Records[i].Source {
			t.Errorf("record %d differs", i)
		}
	}
	for i := range a.Gaps {
		if a.Gaps[i] != b.Gaps[i] {
			t.Errorf("gap %d differs: %v vs %v", i, a.Gaps[i], b.Gaps[i])
		}
	}
}

func TestMergeSingleDayRange(t *testing.T) {
	full := dr("2020-06-15", "2020-06-15")
	outcomes := []coordinator.SegmentOutcome{
		success(full, "open-meteo", recordsFor(full, "open-meteo", 25)),
	}

	series, err := Merge(outcomes, full)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(series.Records) != 1 || !series.Complete() {
		t.Errorf("single day series = %d records, %d gaps", len(series.Records), len(series.Gaps))
	}
}

func TestMergeRejectsSegmentOutsideRange(t *testing.T) {
	full := dr("2020-01-01", "2020-01-10")
	outcomes := []coordinator.SegmentOutcome{
		success(dr("2020-02-01", "2020-02-10"), "open-meteo", nil),
	}

	if _, err := Merge(outcomes, full); err == nil {
		t.Error("expected error for a segment disjoint from the range")
	}
}

func TestMergeRejectsInvalidRange(t *testing.T) {
	if _, err := Merge(nil, weather.DateRange{}); err == nil {
		t.Error("expected error for invalid range")
	}
}
