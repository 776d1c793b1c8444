package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file failed: %v", err)
	}

	if cfg.Engine.MaxInFlight != 5 {
		t.Errorf("MaxInFlight = %d, want 5", cfg.Engine.MaxInFlight)
	}
	if cfg.Engine.MaxRangeYears != 55 {
		t.Errorf("MaxRangeYears = %d, want 55", cfg.Engine.MaxRangeYears)
	}
	if cfg.Engine.PreferredProvider != "auto" {
		t.Errorf("PreferredProvider = %q, want auto", cfg.Engine.PreferredProvider)
	}
	if cfg.OpenMeteo.MaxSpanDays != 90 {
		t.Errorf("OpenMeteo.MaxSpanDays = %d, want 90", cfg.OpenMeteo.MaxSpanDays)
	}
	if cfg.Meteostat.MaxSpanDays != 3650 {
		t.Errorf("Meteostat.MaxSpanDays = %d, want 3650", cfg.Meteostat.MaxSpanDays)
	}
	if cfg.Meteostat.MonthlyCalls != 10000 {
		t.Errorf("Meteostat.MonthlyCalls = %d, want 10000", cfg.Meteostat.MonthlyCalls)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}

	if got := cfg.MaxRangeDays(); got != 55*366 {
		t.Errorf("MaxRangeDays() = %d, want %d", got, 55*366)
	}
	if got := cfg.OpenMeteoTimeout(); got != 30*time.Second {
		t.Errorf("OpenMeteoTimeout() = %v, want 30s", got)
	}
	if got := cfg.MeteostatTimeout(); got != 15*time.Second {
		t.Errorf("MeteostatTimeout() = %v, want 15s", got)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  max_in_flight: 8
  max_range_years: 30
  preferred_provider: meteostat
open_meteo:
  max_span_days: 60
  timeout_seconds: 20
meteostat:
  api_key: from-file
  monthly_calls: 5000
redis:
  addr: localhost:6380
logging:
  level: debug
  pretty: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.MaxInFlight != 8 {
		t.Errorf("MaxInFlight = %d, want 8", cfg.Engine.MaxInFlight)
	}
	if cfg.Engine.MaxRangeYears != 30 {
		t.Errorf("MaxRangeYears = %d, want 30", cfg.Engine.MaxRangeYears)
	}
	if cfg.Engine.PreferredProvider != "meteostat" {
		t.Errorf("PreferredProvider = %q, want meteostat", cfg.Engine.PreferredProvider)
	}
	if cfg.OpenMeteo.MaxSpanDays != 60 {
		t.Errorf("OpenMeteo.MaxSpanDays = %d, want 60", cfg.OpenMeteo.MaxSpanDays)
	}
	if cfg.Meteostat.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.Meteostat.APIKey)
	}
	if cfg.Meteostat.MonthlyCalls != 5000 {
		t.Errorf("MonthlyCalls = %d, want 5000", cfg.Meteostat.MonthlyCalls)
	}
	if cfg.Redis.Addr != "localhost:6380" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Pretty {
		t.Errorf("logging = %q/%v, want debug/true", cfg.Logging.Level, cfg.Logging.Pretty)
	}

	// Unset fields still get defaults.
	if cfg.Meteostat.MaxConcurrent != 5 {
		t.Errorf("Meteostat.MaxConcurrent = %d, want default 5", cfg.Meteostat.MaxConcurrent)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
meteostat:
  api_key: from-file
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("METEOSTAT_API_KEY", "from-env")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("MAX_IN_FLIGHT", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Meteostat.APIKey != "from-env" {
		t.Errorf("APIKey = %q, env should override the file", cfg.Meteostat.APIKey)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Level = %q, env should override the file", cfg.Logging.Level)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q, want redis:6379", cfg.Redis.Addr)
	}
	if cfg.Engine.MaxInFlight != 12 {
		t.Errorf("MaxInFlight = %d, want 12", cfg.Engine.MaxInFlight)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("engine: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadIgnoresInvalidMaxInFlight(t *testing.T) {
	t.Setenv("MAX_IN_FLIGHT", "banana")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxInFlight != 5 {
		t.Errorf("MaxInFlight = %d, want default 5 when env value is invalid", cfg.Engine.MaxInFlight)
	}
}
