package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/cleaning-dispatch/internal/application"
	"github.com/example/cleaning-dispatch/internal/calendarsync"
	"github.com/example/cleaning-dispatch/internal/config"
	"github.com/example/cleaning-dispatch/internal/logging"
	"github.com/example/cleaning-dispatch/internal/persistence/sqlite"
	"github.com/example/cleaning-dispatch/internal/route"
)

// planningHorizon is how far ahead templates are materialized on each run.
const planningHorizon = 14 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close store", "error", cerr)
		}
	}()

	if err := store.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	templates := sqlite.NewTemplateRepository(store)
	occurrences := sqlite.NewOccurrenceRepository(store)
	teams := sqlite.NewTeamRepository(store)
	assignments := sqlite.NewAssignmentRepository(store)
	links := sqlite.NewLinkRepository(store)

	idGenerator := uuid.NewString
	now := time.Now

	routeParams := route.Params{
		AverageSpeedKmh: cfg.AverageSpeedKmh,
		FuelCostPerKm:   cfg.FuelCostPerKm,
		Depot:           cfg.Depot,
	}

	scheduling := application.NewSchedulingService(
		templates, occurrences, teams, assignments,
		routeParams, location, idGenerator, now, logger,
	)

	ctx = logging.ContextWithLogger(ctx, logger)

	today := now().In(location)
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, location)
	to := from.Add(planningHorizon)

	created, err := scheduling.MaterializeAll(ctx, from, to, nil)
	if err != nil {
		logger.Error("materialization failed", "error", err)
		os.Exit(1)
	}
	logger.Info("materialization completed", "created", created, "from", from, "to", to)

	results, err := scheduling.DispatchDate(ctx, from)
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dispatch completed", "results", len(results))

	routes, summary, err := scheduling.BuildRoutes(ctx, from)
	if err != nil {
		logger.Error("route building failed", "error", err)
		os.Exit(1)
	}
	logger.Info("routes completed",
		"routes", len(routes),
		"jobs", summary.TotalJobs,
		"distance_km", summary.TotalDistanceKm,
		"fuel_cost", summary.TotalFuelCost,
	)

	if cfg.CalendarBaseURL == "" {
		logger.Info("calendar sync skipped, no calendar configured")
		return
	}

	calendar, err := calendarsync.NewHTTPCalendar(calendarsync.HTTPCalendarConfig{
		BaseURL:  cfg.CalendarBaseURL,
		APIKey:   cfg.CalendarAPIKey,
		RetryMax: cfg.SyncRetries,
	})
	if err != nil {
		logger.Error("failed to build calendar client", "error", err)
		os.Exit(1)
	}

	reconciler := calendarsync.NewReconciler(calendar, occurrences, links, calendarsync.Options{
		Direction:     calendarsync.Direction(cfg.SyncDirection),
		Workers:       cfg.SyncWorkers,
		RetryAttempts: cfg.SyncRetries,
		CallTimeout:   cfg.SyncCallTimeout,
	}, idGenerator, now, logger)

	report, err := reconciler.Run(ctx, from, to)
	if err != nil {
		logger.Error("calendar sync failed", "error", err)
		os.Exit(1)
	}
	logger.Info("calendar sync completed",
		"processed", report.Processed,
		"created_external", report.CreatedExternal,
		"updated_external", report.UpdatedExternal,
		"deleted_external", report.DeletedExternal,
		"created_local", report.CreatedLocal,
		"updated_local", report.UpdatedLocal,
		"cancelled_local", report.CancelledLocal,
		"conflicts", len(report.Conflicts),
		"errors", len(report.Errors),
	)
}
