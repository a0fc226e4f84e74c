// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Capstream server.
//
// Capstream ingests Common Alerting Protocol (CAP) feeds from registered
// publishers, stores the alerts in an embedded DuckDB database, and
// distributes lifecycle events (new, update, expire) to WebSocket clients
// and, optionally, to NATS subjects.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Database: DuckDB with the spatial extension for area queries
//  3. Event broker: in-process Watermill pub/sub for lifecycle events
//  4. CAP parser: HTTP client, document cache, per-source circuit breakers
//  5. Scheduler: one polling loop per active source, plus the janitor
//  6. WebSocket hub and event bridge: real-time fan-out to clients
//  7. NATS forwarder (optional, -tags nats): mirrors events to NATS
//  8. HTTP server: REST API for alerts, sources, stats, and health
//
// All long-running components run under a Suture supervisor tree and restart
// with backoff on failure.
//
// # Build Tags
//
//	go build ./cmd/server              # in-process events only
//	go build -tags nats ./cmd/server   # enable the NATS forwarder
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server drains
// in-flight requests, the scheduler loops stop, and the database closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/decibelco/capstream/internal/api"
	"github.com/decibelco/capstream/internal/capfeed"
	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/scheduler"
	"github.com/decibelco/capstream/internal/supervisor"
	ws "github.com/decibelco/capstream/internal/websocket"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The default logger handles config errors since config is not yet
		// available.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Capstream")
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Bool("spatial", db.IsSpatialAvailable()).Msg("Database initialized")

	if cfg.Database.SeedDefaults {
		inserted, err := db.SeedSources(context.Background(), database.DefaultSources())
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed default sources")
		}
		logging.Info().Int("inserted", inserted).Msg("Default sources seeded (SEED_DEFAULT_SOURCES=true)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := events.NewBroker()
	defer func() {
		if err := broker.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event broker")
		}
	}()

	parser := capfeed.NewParser(capfeed.Config{
		MaxItems:    cfg.Fetch.MaxItems,
		DetailDelay: cfg.Fetch.DetailDelay,
		CacheTTL:    cfg.Fetch.CacheTTL,
		HTTPTimeout: cfg.Fetch.HTTPTimeout,
	})

	sched := scheduler.New(db, parser, broker, cfg.Fetch)
	janitor := scheduler.NewJanitor(db, broker, sched, cfg.Janitor)

	wsHub := ws.NewHub()
	bridge := ws.NewBridge(wsHub, broker)

	// NATS forwarding is compiled in with -tags nats; without it the stub
	// logs a warning when NATS_ENABLED is set.
	natsForwarder := initNATS(cfg, broker)
	if natsForwarder != nil {
		defer func() {
			if err := natsForwarder.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing NATS forwarder")
			}
		}()
	}

	handler := api.NewHandler(db, sched, parser, broker, wsHub)
	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	router := api.NewRouter(handler, mw)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervisor tree: ingest (scheduler, janitor), messaging (hub, bridge),
	// api (HTTP server). The zerolog-to-slog bridge feeds sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddIngestService(supervisor.NewSchedulerService(sched))
	tree.AddIngestService(supervisor.NewRunnerService("janitor", janitor))
	tree.AddMessagingService(supervisor.NewRunnerService("websocket-hub", wsHub))
	tree.AddMessagingService(supervisor.NewRunnerService("event-bridge", bridge))
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Capstream stopped gracefully")
}
