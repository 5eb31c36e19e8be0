/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the club dues server: the daily cron scheduler
  plus the HTTP admin surface. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, DUES_* environment, then flags)
  2. Build the app (SQLite store, engines, push sender, metrics, run lock)
  3. Optionally load a seed fixture
  4. Start the scheduler (unless disabled)
  5. Start the HTTP server

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (DUES_PORT, default: 8080)
  -db      SQLite database path (DUES_DB_PATH, default: ./data/dues.db)
           Use ":memory:" for in-memory database
  -seed    JSON or YAML fixture loaded at startup (DUES_SEED_FILE)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop scheduling new jobs and wait for running ones
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the push publisher and database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/dues.db"

  # Demo: in-memory database with a seed, console logs
  DUES_ENV=development ./server -db=":memory:" -seed=seed/demo.yaml

SEE ALSO:
  - config/config.go: All DUES_* variables
  - api/server.go: Router configuration
  - api/scheduler.go: Cron entry points
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/club-dues/api"
	"github.com/warp/club-dues/app"
	"github.com/warp/club-dues/config"
	"github.com/warp/club-dues/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "Fixture file loaded at startup")
	flag.Parse()

	logger := observability.NewLogger(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.SeedFile != "" {
		if err := a.Seed(ctx, cfg.SeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	handler := api.NewHandler(a.Store, a.Jobs, logger)
	router := api.NewRouter(handler, a.Metrics)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var sched *api.DuesScheduler
	if cfg.SchedulerEnabled {
		sched, err = api.NewDuesScheduler(a.Jobs, a.Schedules(), logger)
		if err != nil {
			return err
		}
		sched.Retry = a.RetryPolicy()
		sched.Lock = a.Lock
		sched.LockTTL = cfg.LockTTL
		sched.Start()
	} else {
		logger.Info().Msg("scheduler disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		if sched != nil {
			<-sched.Stop().Done()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
