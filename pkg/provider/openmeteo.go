package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// OpenMeteoID identifies the free Open-Meteo archive provider.
const OpenMeteoID = "open-meteo"

// DefaultOpenMeteoBaseURL is the ERA5 reanalysis archive endpoint.
const DefaultOpenMeteoBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// DefaultOpenMeteoProfile returns the free provider's limits: large
// spans, no call budget, generous timeout for long historical queries.
// The archive lags roughly five days behind realtime; requests touching
// that boundary come back with trailing nulls, surfaced as gaps by the
// merger.
func DefaultOpenMeteoProfile() Profile {
	return Profile{
		ID:            OpenMeteoID,
		MaxSpanDays:   90,
		MaxConcurrent: 10,
		WindowCalls:   0,
		Timeout:       30 * time.Second,
	}
}

// OpenMeteoConfig configures the Open-Meteo client.
type OpenMeteoConfig struct {
	// BaseURL overrides the archive endpoint (tests point it at a mock).
	BaseURL string

	// Profile overrides DefaultOpenMeteoProfile when ID is non-empty.
	Profile Profile

	// Usage receives one notification per physical call.
	Usage UsageRecorder

	// HTTPClient overrides the default client. The profile timeout is
	// applied per request, not on the client.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// OpenMeteo fetches daily records from the Open-Meteo archive API.
type OpenMeteo struct {
	baseURL    string
	profile    Profile
	usage      UsageRecorder
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// NewOpenMeteo creates the free-provider client.
func NewOpenMeteo(cfg OpenMeteoConfig) *OpenMeteo {
	profile := cfg.Profile
	if profile.ID == "" {
		profile = DefaultOpenMeteoProfile()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenMeteoBaseURL
	}
	usage := cfg.Usage
	if usage == nil {
		usage = noopRecorder{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenMeteo{
		baseURL:    baseURL,
		profile:    profile,
		usage:      usage,
		httpClient: httpClient,
		breaker:    newBreaker(profile.ID),
		logger:     cfg.Logger.With().Str("provider", profile.ID).Logger(),
	}
}

// Profile implements Client.
func (c *OpenMeteo) Profile() Profile {
	return c.profile
}

// FetchSegment performs one archive API call for the segment and
// normalizes the response. Every requested parameter appears in each
// record's value map, nil when the provider had no value for that day.
func (c *OpenMeteo) FetchSegment(ctx context.Context, loc weather.Location, r weather.DateRange, params []weather.Parameter) ([]weather.DailyRecord, error) {
	daily := make([]string, len(params))
	for i, p := range params {
		daily[i] = string(p)
	}
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	query.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	query.Set("start_date", r.Start.String())
	query.Set("end_date", r.End.String())
	query.Set("daily", strings.Join(daily, ","))
	query.Set("timezone", "UTC")
	query.Set("models", "best_match")

	body, err := doProviderCall(ctx, callSpec{
		provider:   c.profile.ID,
		method:     http.MethodGet,
		url:        c.baseURL + "?" + query.Encode(),
		timeout:    c.profile.Timeout,
		httpClient: c.httpClient,
		breaker:    c.breaker,
		usage:      c.usage,
		logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}
	return c.decode(body, r, params)
}

// decode turns the archive column-vector payload into per-day records.
func (c *OpenMeteo) decode(body []byte, r weather.DateRange, params []weather.Parameter) ([]weather.DailyRecord, error) {
	var payload struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "decode response", Err: err}
	}
	if payload.Daily == nil {
		return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "response missing daily block"}
	}

	var dates []string
	if raw, ok := payload.Daily["time"]; ok {
		if err := json.Unmarshal(raw, &dates); err != nil {
			return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "decode daily.time", Err: err}
		}
	}

	columns := make(map[weather.Parameter][]*float64, len(params))
	for _, p := range params {
		raw, ok := payload.Daily[string(p)]
		if !ok {
			continue
		}
		var col []*float64
		if err := json.Unmarshal(raw, &col); err != nil {
			return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: fmt.Sprintf("decode daily.%s", p), Err: err}
		}
		columns[p] = col
	}

	records := make([]weather.DailyRecord, 0, len(dates))
	for i, s := range dates {
		date, err := weather.ParseDate(s)
		if err != nil {
			return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "decode record date", Err: err}
		}
		if !r.Contains(date) {
			continue
		}
		rec := weather.DailyRecord{
			Date:   date,
			Source: c.profile.ID,
			Values: make(map[weather.Parameter]*float64, len(params)),
		}
		allNull := true
		for _, p := range params {
			var v *float64
			if col := columns[p]; i < len(col) {
				v = col[i]
			}
			rec.Values[p] = v
			if v != nil {
				allNull = false
			}
		}
		// Trailing all-null days are the archive's realtime lag, not data.
		if allNull {
			continue
		}
		rec.FillDerived()
		records = append(records, rec)
	}
	return records, nil
}

// callSpec bundles what one physical provider call needs.
type callSpec struct {
	provider   string
	method     string
	url        string
	header     http.Header
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	usage      UsageRecorder
	logger     zerolog.Logger
}

// newBreaker creates the per-provider circuit breaker. A tripped
// breaker fails calls as transient until its timeout elapses, which
// pushes the coordinator onto the fallback provider without burning
// the retry budget against a dead endpoint.
func newBreaker(provider string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doProviderCall executes exactly one physical HTTP call through the
// circuit breaker, records usage, classifies failures, and returns the
// response body on 200.
func doProviderCall(ctx context.Context, spec callSpec) ([]byte, error) {
	start := time.Now()
	result, err := spec.breaker.Execute(func() (interface{}, error) {
		callCtx := ctx
		if spec.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, spec.timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(callCtx, spec.method, spec.url, nil)
		if err != nil {
			return nil, &Error{Provider: spec.provider, Kind: KindInvalidRequest, Message: "build request", Err: err}
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "meteo-analytics/1.0")
		for k, vs := range spec.header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := spec.httpClient.Do(req)
		// The request went on the wire (or failed trying): that is one
		// physical call against the provider's budget either way.
		spec.usage.RecordUsage(spec.provider)
		if err != nil {
			// Caller cancellation is not a provider failure.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			providerErrorsTotal.WithLabelValues(spec.provider, string(KindTransient)).Inc()
			providerRequestsTotal.WithLabelValues(spec.provider, "network_error").Inc()
			return nil, &Error{Provider: spec.provider, Kind: KindTransient, Message: "request failed", Err: err}
		}
		defer resp.Body.Close()

		providerRequestsTotal.WithLabelValues(spec.provider, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		if resp.StatusCode != http.StatusOK {
			kind := KindForStatus(resp.StatusCode)
			providerErrorsTotal.WithLabelValues(spec.provider, string(kind)).Inc()
			msg := resp.Status
			if snippet, readErr := io.ReadAll(io.LimitReader(resp.Body, 256)); readErr == nil && len(snippet) > 0 {
				msg = string(snippet)
			}
			spec.logger.Warn().
				Int("status", resp.StatusCode).
				Str("kind", string(kind)).
				Msg("Provider request error")
			return nil, &Error{Provider: spec.provider, Kind: kind, StatusCode: resp.StatusCode, Message: msg}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			providerErrorsTotal.WithLabelValues(spec.provider, string(KindTransient)).Inc()
			return nil, &Error{Provider: spec.provider, Kind: KindTransient, Message: "read response body", Err: err}
		}
		return body, nil
	})
	providerRequestDuration.WithLabelValues(spec.provider).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			providerErrorsTotal.WithLabelValues(spec.provider, string(KindTransient)).Inc()
			return nil, &Error{Provider: spec.provider, Kind: KindTransient, Message: "circuit breaker open", Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}
