package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

// MeteostatID identifies the metered Meteostat provider.
const MeteostatID = "meteostat"

// DefaultMeteostatBaseURL is the RapidAPI gateway for Meteostat.
const DefaultMeteostatBaseURL = "https://meteostat.p.rapidapi.com"

const meteostatRapidAPIHost = "meteostat.p.rapidapi.com"

// DefaultMeteostatProfile returns the metered provider's limits: a
// 10-year span per call and the $10 plan's 10k calls per 30 days.
func DefaultMeteostatProfile() Profile {
	return Profile{
		ID:            MeteostatID,
		MaxSpanDays:   10 * 365,
		MaxConcurrent: 5,
		WindowCalls:   10000,
		Window:        30 * 24 * time.Hour,
		Timeout:       15 * time.Second,
	}
}

// MeteostatConfig configures the Meteostat client.
type MeteostatConfig struct {
	// APIKey is the RapidAPI key. An empty key makes every fetch fail
	// with an auth error, which routes segments to the free provider.
	APIKey string

	// BaseURL overrides the gateway (tests point it at a mock).
	BaseURL string

	// Profile overrides DefaultMeteostatProfile when ID is non-empty.
	Profile Profile

	// Usage receives one notification per physical call.
	Usage UsageRecorder

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Meteostat fetches daily records from the Meteostat point API. It
// backfills station-based observations the reanalysis archive lacks,
// at the price of a hard monthly call budget.
type Meteostat struct {
	apiKey     string
	baseURL    string
	profile    Profile
	usage      UsageRecorder
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

// NewMeteostat creates the metered-provider client.
func NewMeteostat(cfg MeteostatConfig) *Meteostat {
	profile := cfg.Profile
	if profile.ID == "" {
		profile = DefaultMeteostatProfile()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultMeteostatBaseURL
	}
	usage := cfg.Usage
	if usage == nil {
		usage = noopRecorder{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Meteostat{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		profile:    profile,
		usage:      usage,
		httpClient: httpClient,
		breaker:    newBreaker(profile.ID),
		logger:     cfg.Logger.With().Str("provider", profile.ID).Logger(),
	}
}

// Profile implements Client.
func (c *Meteostat) Profile() Profile {
	return c.profile
}

// meteostatDay is one row of the point/daily response. All metrics are
// nullable.
type meteostatDay struct {
	Date string   `json:"date"`
	Tavg *float64 `json:"tavg"`
	Tmin *float64 `json:"tmin"`
	Tmax *float64 `json:"tmax"`
	Prcp *float64 `json:"prcp"`
	Wspd *float64 `json:"wspd"`
	Wpgt *float64 `json:"wpgt"`
	Wdir *float64 `json:"wdir"`
	Tsun *float64 `json:"tsun"`
}

// value returns the row's value for a canonical parameter name, nil for
// metrics Meteostat does not carry.
func (d meteostatDay) value(p weather.Parameter) *float64 {
	switch p {
	case weather.ParamTempMean:
		return d.Tavg
	case weather.ParamTempMin:
		return d.Tmin
	case weather.ParamTempMax:
		return d.Tmax
	case weather.ParamPrecipSum:
		return d.Prcp
	case weather.ParamWindSpeed:
		return d.Wspd
	case weather.ParamWindGusts:
		return d.Wpgt
	case weather.ParamWindDir:
		return d.Wdir
	case weather.ParamSunshineDur:
		return d.Tsun
	default:
		return nil
	}
}

// FetchSegment performs one point/daily call for the segment. A missing
// API key fails immediately with an auth error and no network call.
func (c *Meteostat) FetchSegment(ctx context.Context, loc weather.Location, r weather.DateRange, params []weather.Parameter) ([]weather.DailyRecord, error) {
	if c.apiKey == "" {
		return nil, &Error{Provider: c.profile.ID, Kind: KindAuth, Message: "api key not configured"}
	}

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.4f", loc.Latitude))
	query.Set("lon", fmt.Sprintf("%.4f", loc.Longitude))
	query.Set("start", r.Start.String())
	query.Set("end", r.End.String())

	header := http.Header{}
	header.Set("X-RapidAPI-Key", c.apiKey)
	header.Set("X-RapidAPI-Host", meteostatRapidAPIHost)

	body, err := doProviderCall(ctx, callSpec{
		provider:   c.profile.ID,
		method:     http.MethodGet,
		url:        c.baseURL + "/point/daily?" + query.Encode(),
		header:     header,
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

func (c *Meteostat) decode(body []byte, r weather.DateRange, params []weather.Parameter) ([]weather.DailyRecord, error) {
	var payload struct {
		Data []meteostatDay `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "decode response", Err: err}
	}
	if payload.Data == nil {
		return nil, &Error{Provider: c.profile.ID, Kind: KindTransient, Message: "response missing data block"}
	}

	records := make([]weather.DailyRecord, 0, len(payload.Data))
	for _, day := range payload.Data {
		date, err := weather.ParseDate(day.Date)
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
			v := day.value(p)
			rec.Values[p] = v
			if v != nil {
				allNull = false
			}
		}
		if allNull {
			continue
		}
		rec.FillDerived()
		records = append(records, rec)
	}
	return records, nil
}
