package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every configuration variable so tests see a clean slate.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DISPATCH_SQLITE_DSN",
		"DISPATCH_LOG_LEVEL",
		"DISPATCH_TIMEZONE",
		"DISPATCH_AVG_SPEED_KMH",
		"DISPATCH_FUEL_COST_PER_KM",
		"DISPATCH_DEPOT",
		"DISPATCH_SYNC_DIRECTION",
		"DISPATCH_SYNC_WORKERS",
		"DISPATCH_SYNC_RETRIES",
		"DISPATCH_SYNC_CALL_TIMEOUT",
		"DISPATCH_CALENDAR_BASE_URL",
		"DISPATCH_CALENDAR_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQLiteDSN != "file:dispatch.db?_foreign_keys=on" {
		t.Errorf("unexpected dsn %q", cfg.SQLiteDSN)
	}
	if cfg.Timezone != "Europe/Copenhagen" {
		t.Errorf("unexpected timezone %q", cfg.Timezone)
	}
	if cfg.AverageSpeedKmh != 30 || cfg.FuelCostPerKm != 2.5 {
		t.Errorf("unexpected routing defaults: %f, %f", cfg.AverageSpeedKmh, cfg.FuelCostPerKm)
	}
	if cfg.Depot != nil {
		t.Errorf("expected no depot by default, got %+v", cfg.Depot)
	}
	if cfg.SyncDirection != "bidirectional" || cfg.SyncWorkers != 4 || cfg.SyncRetries != 3 {
		t.Errorf("unexpected sync defaults: %+v", cfg)
	}
	if cfg.SyncCallTimeout != 10*time.Second {
		t.Errorf("unexpected call timeout %v", cfg.SyncCallTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISPATCH_SQLITE_DSN", "file:test.db")
	t.Setenv("DISPATCH_LOG_LEVEL", "debug")
	t.Setenv("DISPATCH_TIMEZONE", "UTC")
	t.Setenv("DISPATCH_AVG_SPEED_KMH", "45")
	t.Setenv("DISPATCH_FUEL_COST_PER_KM", "3.1")
	t.Setenv("DISPATCH_DEPOT", "55.6761, 12.5683")
	t.Setenv("DISPATCH_SYNC_DIRECTION", "push")
	t.Setenv("DISPATCH_SYNC_WORKERS", "8")
	t.Setenv("DISPATCH_SYNC_RETRIES", "5")
	t.Setenv("DISPATCH_SYNC_CALL_TIMEOUT", "30s")
	t.Setenv("DISPATCH_CALENDAR_BASE_URL", "https://calendar.example.com/api")
	t.Setenv("DISPATCH_CALENDAR_API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQLiteDSN != "file:test.db" || cfg.LogLevel != "debug" || cfg.Timezone != "UTC" {
		t.Errorf("basic overrides not applied: %+v", cfg)
	}
	if cfg.AverageSpeedKmh != 45 || cfg.FuelCostPerKm != 3.1 {
		t.Errorf("routing overrides not applied: %+v", cfg)
	}
	if cfg.Depot == nil || cfg.Depot.Lat != 55.6761 || cfg.Depot.Lng != 12.5683 {
		t.Errorf("depot not parsed: %+v", cfg.Depot)
	}
	if cfg.SyncDirection != "push" || cfg.SyncWorkers != 8 || cfg.SyncRetries != 5 {
		t.Errorf("sync overrides not applied: %+v", cfg)
	}
	if cfg.SyncCallTimeout != 30*time.Second {
		t.Errorf("timeout override not applied: %v", cfg.SyncCallTimeout)
	}
	if cfg.CalendarBaseURL != "https://calendar.example.com/api" || cfg.CalendarAPIKey != "secret" {
		t.Errorf("calendar overrides not applied: %+v", cfg)
	}
}

func TestLoadCollectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISPATCH_TIMEZONE", "Mars/Olympus")
	t.Setenv("DISPATCH_AVG_SPEED_KMH", "-20")
	t.Setenv("DISPATCH_DEPOT", "91,0")
	t.Setenv("DISPATCH_SYNC_DIRECTION", "sideways")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{
		"DISPATCH_TIMEZONE",
		"DISPATCH_AVG_SPEED_KMH",
		"DISPATCH_DEPOT",
		"DISPATCH_SYNC_DIRECTION",
	} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{input: "55.6761,12.5683"},
		{input: " 55.6761 , 12.5683 "},
		{input: "55.6761", wantErr: true},
		{input: "abc,12", wantErr: true},
		{input: "95,12", wantErr: true},
		{input: "55,190", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			_, err := parseCoordinate(tc.input)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("parse: %v", err)
			}
		})
	}
}
