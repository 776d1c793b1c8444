// Package config loads the engine configuration from a YAML file with
// environment variable overrides. Missing files are not an error; every
// field has a working default so the binary runs with no config at all
// (the metered provider then needs METEOSTAT_API_KEY from the
// environment).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine struct {
		MaxInFlight       int    `yaml:"max_in_flight"`
		MaxRangeYears     int    `yaml:"max_range_years"`
		PreferredProvider string `yaml:"preferred_provider"`
	} `yaml:"engine"`

	OpenMeteo struct {
		BaseURL        string `yaml:"base_url"`
		MaxSpanDays    int    `yaml:"max_span_days"`
		MaxConcurrent  int    `yaml:"max_concurrent"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"open_meteo"`

	Meteostat struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		MaxSpanDays    int    `yaml:"max_span_days"`
		MaxConcurrent  int    `yaml:"max_concurrent"`
		MonthlyCalls   int    `yaml:"monthly_calls"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"meteostat"`

	Redis struct {
		// Addr enables the Redis segment cache when non-empty.
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Geo struct {
		// CitiesDB is the path to the settlements SQLite database.
		CitiesDB string `yaml:"cities_db"`
	} `yaml:"geo"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("METEOSTAT_API_KEY"); v != "" {
		cfg.Meteostat.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CITIES_DB"); v != "" {
		cfg.Geo.CitiesDB = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxInFlight = n
		}
	}

	// Defaults
	if cfg.Engine.MaxInFlight == 0 {
		cfg.Engine.MaxInFlight = 5
	}
	if cfg.Engine.MaxRangeYears == 0 {
		cfg.Engine.MaxRangeYears = 55
	}
	if cfg.Engine.PreferredProvider == "" {
		cfg.Engine.PreferredProvider = "auto"
	}
	if cfg.OpenMeteo.MaxSpanDays == 0 {
		cfg.OpenMeteo.MaxSpanDays = 90
	}
	if cfg.OpenMeteo.MaxConcurrent == 0 {
		cfg.OpenMeteo.MaxConcurrent = 10
	}
	if cfg.OpenMeteo.TimeoutSeconds == 0 {
		cfg.OpenMeteo.TimeoutSeconds = 30
	}
	if cfg.Meteostat.MaxSpanDays == 0 {
		cfg.Meteostat.MaxSpanDays = 10 * 365
	}
	if cfg.Meteostat.MaxConcurrent == 0 {
		cfg.Meteostat.MaxConcurrent = 5
	}
	if cfg.Meteostat.MonthlyCalls == 0 {
		cfg.Meteostat.MonthlyCalls = 10000
	}
	if cfg.Meteostat.TimeoutSeconds == 0 {
		cfg.Meteostat.TimeoutSeconds = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

// MaxRangeDays converts the configured year ceiling to days.
func (c *Config) MaxRangeDays() int {
	return c.Engine.MaxRangeYears * 366
}

// OpenMeteoTimeout returns the free provider's per-call timeout.
func (c *Config) OpenMeteoTimeout() time.Duration {
	return time.Duration(c.OpenMeteo.TimeoutSeconds) * time.Second
}

// MeteostatTimeout returns the metered provider's per-call timeout.
func (c *Config) MeteostatTimeout() time.Duration {
	return time.Duration(c.Meteostat.TimeoutSeconds) * time.Second
}
