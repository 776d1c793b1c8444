// meteo-fetch acquires a historical daily weather series for a
// location and date range, printing progress while segments complete
// and a summary (plus optional CSV) when the acquisition finishes.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/matt1111-hash/meteo-analytics/internal/config"
	"github.com/matt1111-hash/meteo-analytics/internal/geo"
	"github.com/matt1111-hash/meteo-analytics/pkg/cache"
	"github.com/matt1111-hash/meteo-analytics/pkg/engine"
	"github.com/matt1111-hash/meteo-analytics/pkg/logging"
	"github.com/matt1111-hash/meteo-analytics/pkg/provider"
	"github.com/matt1111-hash/meteo-analytics/pkg/quota"
	"github.com/matt1111-hash/meteo-analytics/pkg/weather"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to YAML config file")
		city        = flag.String("city", "", "settlement name to look up in the cities database")
		lat         = flag.Float64("lat", 0, "latitude (ignored when -city is set)")
		lon         = flag.Float64("lon", 0, "longitude (ignored when -city is set)")
		startArg    = flag.String("start", "", "range start (YYYY-MM-DD)")
		endArg      = flag.String("end", "", "range end (YYYY-MM-DD)")
		paramsArg   = flag.String("params", "", "comma-separated parameter names (default: standard daily set)")
		providerArg = flag.String("provider", "", "provider preference: auto, open-meteo, or meteostat")
		csvPath     = flag.String("csv", "", "write the merged series to this CSV file")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
	})

	req, err := buildRequest(cfg, *city, *lat, *lon, *startArg, *endArg, *paramsArg, *providerArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var cacheManager *cache.Manager
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("Redis unreachable, segment cache disabled")
		} else {
			cacheManager = cache.NewManager(redisClient)
			defer redisClient.Close()
		}
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("serving Prometheus metrics")
	}

	tracker := quota.NewTracker(logger)
	clients := []provider.Client{
		provider.NewOpenMeteo(provider.OpenMeteoConfig{
			BaseURL: cfg.OpenMeteo.BaseURL,
			Profile: provider.Profile{
				ID:            provider.OpenMeteoID,
				MaxSpanDays:   cfg.OpenMeteo.MaxSpanDays,
				MaxConcurrent: cfg.OpenMeteo.MaxConcurrent,
				Timeout:       cfg.OpenMeteoTimeout(),
			},
			Usage: tracker,
		}),
		provider.NewMeteostat(provider.MeteostatConfig{
			APIKey:  cfg.Meteostat.APIKey,
			BaseURL: cfg.Meteostat.BaseURL,
			Profile: provider.Profile{
				ID:            provider.MeteostatID,
				MaxSpanDays:   cfg.Meteostat.MaxSpanDays,
				MaxConcurrent: cfg.Meteostat.MaxConcurrent,
				WindowCalls:   cfg.Meteostat.MonthlyCalls,
				Window:        30 * 24 * time.Hour,
				Timeout:       cfg.MeteostatTimeout(),
			},
			Usage: tracker,
		}),
	}

	eng := engine.New(engine.Config{
		MaxInFlight:  cfg.Engine.MaxInFlight,
		MaxRangeDays: cfg.MaxRangeDays(),
	}, clients, tracker, provider.DefaultRetryPolicy(), cacheManager, logger)

	handle, err := eng.Submit(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit: %v\n", err)
		os.Exit(1)
	}

	// Ctrl-C cancels the acquisition; completed segments are kept.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn().Msg("interrupt received, cancelling acquisition")
		handle.Cancel()
	}()

	for p := range handle.Progress() {
		done := p.Completed + p.Failed + p.Cancelled
		fmt.Fprintf(os.Stderr, "\r%d/%d segments (%d failed)  ", done, p.Total, p.Failed)
	}
	fmt.Fprintln(os.Stderr)

	result := <-handle.Done()
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "acquisition failed: %v\n", result.Err)
		os.Exit(1)
	}

	printSummary(req, result)
	if *csvPath != "" {
		if err := writeCSV(*csvPath, req.Parameters, result.Series); err != nil {
			fmt.Fprintf(os.Stderr, "write csv: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("series written to %s\n", *csvPath)
	}
}

func buildRequest(cfg *config.Config, city string, lat, lon float64, start, end, params, preference string) (weather.FetchRequest, error) {
	var req weather.FetchRequest

	if city != "" {
		if cfg.Geo.CitiesDB == "" {
			return req, fmt.Errorf("-city requires a cities database (geo.cities_db or CITIES_DB)")
		}
		db, err := geo.Open(cfg.Geo.CitiesDB)
		if err != nil {
			return req, fmt.Errorf("open cities database: %w", err)
		}
		defer db.Close()
		s, err := db.Lookup(context.Background(), city)
		if err != nil {
			return req, fmt.Errorf("look up %q: %w", city, err)
		}
		req.Location = s.Location()
	} else {
		req.Location = weather.Location{
			Name:      fmt.Sprintf("%.4f,%.4f", lat, lon),
			Latitude:  lat,
			Longitude: lon,
		}
	}

	if start == "" || end == "" {
		return req, fmt.Errorf("-start and -end are required (YYYY-MM-DD)")
	}
	startDate, err := weather.ParseDate(start)
	if err != nil {
		return req, fmt.Errorf("parse -start: %w", err)
	}
	endDate, err := weather.ParseDate(end)
	if err != nil {
		return req, fmt.Errorf("parse -end: %w", err)
	}
	req.Range = weather.DateRange{Start: startDate, End: endDate}

	if params != "" {
		for _, raw := range strings.Split(params, ",") {
			p := weather.Parameter(strings.TrimSpace(raw))
			if !p.Known() {
				return req, fmt.Errorf("unknown parameter %q", p)
			}
			req.Parameters = append(req.Parameters, p)
		}
	} else {
		req.Parameters = weather.DefaultParameters()
	}

	req.Provider = preference
	if req.Provider == "" {
		req.Provider = cfg.Engine.PreferredProvider
	}
	return req, nil
}

func printSummary(req weather.FetchRequest, result engine.Result) {
	series := result.Series
	fmt.Printf("location:  %s (%.4f, %.4f)\n",
		req.Location.Name, req.Location.Latitude, req.Location.Longitude)
	fmt.Printf("range:     %s (%d days)\n", series.Range, series.Range.Days())
	fmt.Printf("records:   %d\n", len(series.Records))
	if result.Cancelled {
		fmt.Println("status:    cancelled (partial series)")
	} else if series.Complete() {
		fmt.Println("status:    complete")
	} else {
		fmt.Printf("status:    %d days missing\n", series.GapDays())
	}

	bySource := make(map[string]int)
	for _, rec := range series.Records {
		bySource[rec.Source]++
	}
	for source, n := range bySource {
		fmt.Printf("  %-12s %d days\n", source, n)
	}
	for _, gap := range series.Gaps {
		fmt.Printf("gap:       %s (%d days, %s)\n", gap.Range, gap.Range.Days(), gap.Reason)
	}
}

func writeCSV(path string, params []weather.Parameter, series weather.MergedSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"date", "source"}
	for _, p := range params {
		header = append(header, string(p))
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range series.Records {
		row := []string{rec.Date.String(), rec.Source}
		for _, p := range params {
			if v, ok := rec.Value(p); ok {
				row = append(row, fmt.Sprintf("%.2f", v))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
