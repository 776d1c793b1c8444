// Package weather defines the core domain types shared across the
// acquisition engine: calendar dates, locations, daily parameters,
// fetch requests, and the merged result series with its gap report.
package weather

import (
	"fmt"
)

// Parameter identifies one daily weather metric. Canonical names follow
// the Open-Meteo archive API daily fields; other providers map onto them.
type Parameter string

const (
	ParamTempMax     Parameter = "temperature_2m_max"
	ParamTempMin     Parameter = "temperature_2m_min"
	ParamTempMean    Parameter = "temperature_2m_mean"
	ParamPrecipSum   Parameter = "precipitation_sum"
	ParamWindSpeed   Parameter = "windspeed_10m_max"
	ParamWindGusts   Parameter = "windgusts_10m_max"
	ParamWindDir     Parameter = "winddirection_10m_dominant"
	ParamSunshineDur Parameter = "sunshine_duration"
)

var knownParameters = map[Parameter]bool{
	ParamTempMax:     true,
	ParamTempMin:     true,
	ParamTempMean:    true,
	ParamPrecipSum:   true,
	ParamWindSpeed:   true,
	ParamWindGusts:   true,
	ParamWindDir:     true,
	ParamSunshineDur: true,
}

// Known reports whether the parameter is a recognized daily metric.
func (p Parameter) Known() bool {
	return knownParameters[p]
}

// DefaultParameters is the standard daily request set.
func DefaultParameters() []Parameter {
	return []Parameter{
		ParamTempMax,
		ParamTempMin,
		ParamTempMean,
		ParamPrecipSum,
		ParamWindSpeed,
		ParamWindGusts,
		ParamWindDir,
	}
}

// Location is a geographic point, optionally with a display name from
// the settlement lookup.
type Location struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks coordinate bounds.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %g out of range [-90, 90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %g out of range [-180, 180]", l.Longitude)
	}
	return nil
}

// ProviderAuto lets the engine choose the provider order itself.
const ProviderAuto = "auto"

// FetchRequest describes one acquisition. It is immutable once submitted.
type FetchRequest struct {
	Location   Location    `json:"location"`
	Parameters []Parameter `json:"parameters"`
	Range      DateRange   `json:"range"`

	// Provider is ProviderAuto or an explicit provider id to try first.
	Provider string `json:"provider"`
}

// Validate checks the request preconditions that do not depend on
// provider configuration. Range-length ceilings are enforced by the
// planner.
func (r FetchRequest) Validate() error {
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if len(r.Parameters) == 0 {
		return fmt.Errorf("at least one parameter is required")
	}
	for _, p := range r.Parameters {
		if !p.Known() {
			return fmt.Errorf("unknown parameter %q", p)
		}
	}
	if !r.Range.Valid() {
		return fmt.Errorf("invalid date range %s..%s: start must not be after end",
			r.Range.Start, r.Range.End)
	}
	return nil
}

// DailyRecord holds one day's values. Every requested parameter is
// present in Values; a nil entry means the provider returned no value
// for that day. Source is the id of the provider that served the day.
type DailyRecord struct {
	Date   Date                   `json:"date"`
	Source string                 `json:"source"`
	Values map[Parameter]*float64 `json:"values"`
}

// Value returns the parameter value and whether it is non-null.
func (r DailyRecord) Value(p Parameter) (float64, bool) {
	v, ok := r.Values[p]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// FillDerived computes the daily mean temperature from max and min when
// the provider did not report one.
func (r DailyRecord) FillDerived() {
	if _, ok := r.Value(ParamTempMean); ok {
		return
	}
	max, okMax := r.Value(ParamTempMax)
	min, okMin := r.Value(ParamTempMin)
	if okMax && okMin {
		mean := (max + min) / 2
		r.Values[ParamTempMean] = &mean
	}
}

// TemperatureRange returns max minus min temperature for the day.
func (r DailyRecord) TemperatureRange() (float64, bool) {
	max, okMax := r.Value(ParamTempMax)
	min, okMin := r.Value(ParamTempMin)
	if !okMax || !okMin {
		return 0, false
	}
	return max - min, true
}

// GapReason categorizes why a span of days has no data.
type GapReason string

const (
	// GapAllProvidersFailed means every candidate provider failed the segment.
	GapAllProvidersFailed GapReason = "all_providers_failed"

	// GapQuotaExhausted means every candidate provider was out of quota.
	GapQuotaExhausted GapReason = "quota_exhausted"

	// GapCancelled means the acquisition was cancelled before the segment ran.
	GapCancelled GapReason = "cancelled"

	// GapProviderDataMissing means the provider answered but had no data
	// for these days (e.g. the free provider's recent-date delay).
	GapProviderDataMissing GapReason = "provider_data_missing"
)

// Gap is a maximal run of consecutive missing days sharing one reason.
type Gap struct {
	Range  DateRange `json:"range"`
	Reason GapReason `json:"reason"`
}

// MergedSeries is the final, ordered result of an acquisition. Records
// are strictly ascending by date with no duplicates; every day of the
// requested range appears either in Records or inside exactly one Gap.
type MergedSeries struct {
	Range   DateRange     `json:"range"`
	Records []DailyRecord `json:"records"`
	Gaps    []Gap         `json:"gaps"`
}

// Complete reports whether the series has no gaps.
func (s MergedSeries) Complete() bool {
	return len(s.Gaps) == 0
}

// GapDays returns the total number of missing days.
func (s MergedSeries) GapDays() int {
	n := 0
	for _, g := range s.Gaps {
		n += g.Range.Days()
	}
	return n
}

// At returns the record for a date, if one exists.
func (s MergedSeries) At(d Date) (DailyRecord, bool) {
	for _, r := range s.Records {
		if r.Date == d {
			return r, true
		}
	}
	return DailyRecord{}, false
}
