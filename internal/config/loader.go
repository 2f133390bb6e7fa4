package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

// Config captures environment driven configuration for the dispatch engine.
type Config struct {
	SQLiteDSN       string
	LogLevel        string
	Timezone        string
	AverageSpeedKmh float64
	FuelCostPerKm   float64
	Depot           *persistence.Coordinate
	SyncDirection   string
	SyncWorkers     int
	SyncRetries     int
	SyncCallTimeout time.Duration
	CalendarBaseURL string
	CalendarAPIKey  string
}

// Load parses configuration from the process environment.
//
// Optional fields receive operational defaults; values that are present but
// malformed are collected and reported together rather than one at a time.
func Load() (Config, error) {
	cfg := Config{
		SQLiteDSN:       "file:dispatch.db?_foreign_keys=on",
		LogLevel:        "info",
		Timezone:        "Europe/Copenhagen",
		AverageSpeedKmh: 30,
		FuelCostPerKm:   2.5,
		SyncDirection:   "bidirectional",
		SyncWorkers:     4,
		SyncRetries:     3,
		SyncCallTimeout: 10 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if dsn := strings.TrimSpace(os.Getenv("DISPATCH_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if level := strings.TrimSpace(os.Getenv("DISPATCH_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
	if tz := strings.TrimSpace(os.Getenv("DISPATCH_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "DISPATCH_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if value := strings.TrimSpace(os.Getenv("DISPATCH_AVG_SPEED_KMH")); value != "" {
		speed, err := strconv.ParseFloat(value, 64)
		if err != nil || speed <= 0 {
			invalid = append(invalid, "DISPATCH_AVG_SPEED_KMH")
		} else {
			cfg.AverageSpeedKmh = speed
		}
	}
	if value := strings.TrimSpace(os.Getenv("DISPATCH_FUEL_COST_PER_KM")); value != "" {
		cost, err := strconv.ParseFloat(value, 64)
		if err != nil || cost < 0 {
			invalid = append(invalid, "DISPATCH_FUEL_COST_PER_KM")
		} else {
			cfg.FuelCostPerKm = cost
		}
	}
	if value := strings.TrimSpace(os.Getenv("DISPATCH_DEPOT")); value != "" {
		depot, err := parseCoordinate(value)
		if err != nil {
			invalid = append(invalid, "DISPATCH_DEPOT")
		} else {
			cfg.Depot = &depot
		}
	}

	if direction := strings.TrimSpace(os.Getenv("DISPATCH_SYNC_DIRECTION")); direction != "" {
		switch direction {
		case "bidirectional", "push", "pull":
			cfg.SyncDirection = direction
		default:
			invalid = append(invalid, "DISPATCH_SYNC_DIRECTION")
		}
	}
	if value := strings.TrimSpace(os.Getenv("DISPATCH_SYNC_WORKERS")); value != "" {
		workers, err := strconv.Atoi(value)
		if err != nil || workers < 1 {
			invalid = append(invalid, "DISPATCH_SYNC_WORKERS")
		} else {
			cfg.SyncWorkers = workers
		}
	}
	if value := strings.TrimSpace(os.Getenv("DISPATCH_SYNC_RETRIES")); value != "" {
		retries, err := strconv.Atoi(value)
		if err != nil || retries < 1 {
			invalid = append(invalid, "DISPATCH_SYNC_RETRIES")
		} else {
			cfg.SyncRetries = retries
		}
	}
	if value := strings.TrimSpace(os.Getenv("DISPATCH_SYNC_CALL_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "DISPATCH_SYNC_CALL_TIMEOUT")
		} else {
			cfg.SyncCallTimeout = timeout
		}
	}

	cfg.CalendarBaseURL = strings.TrimSpace(os.Getenv("DISPATCH_CALENDAR_BASE_URL"))
	cfg.CalendarAPIKey = strings.TrimSpace(os.Getenv("DISPATCH_CALENDAR_API_KEY"))

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// parseCoordinate parses "lat,lng" with decimal degrees.
func parseCoordinate(value string) (persistence.Coordinate, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return persistence.Coordinate{}, fmt.Errorf("config: coordinate must be \"lat,lng\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return persistence.Coordinate{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return persistence.Coordinate{}, err
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return persistence.Coordinate{}, fmt.Errorf("config: coordinate out of range")
	}
	return persistence.Coordinate{Lat: lat, Lng: lng}, nil
}
