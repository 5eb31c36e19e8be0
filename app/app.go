/*
Package app wires configuration into a running dues engine.

PURPOSE:
  Both binaries (cmd/server and cmd/duesctl) need the same object graph:
  SQLite store, message catalog, push sender, the three engines, metrics
  and the Jobs facade. New builds it once from a config.Config.

RUN LOCK:
  With DUES_REDIS_URL set, Lock is a lock.RedisLock and cmd/server guards
  every cron entry with it. Unset, Lock is nil.

PUSH BACKENDS:
  log:    notify.LogSender (development, CI)
  pubsub: notify.PubSubSender on a Google Cloud Pub/Sub topic

SEE ALSO:
  - config/config.go: Settings
  - api/jobs.go: The facade returned here
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/warp/club-dues/api"
	"github.com/warp/club-dues/config"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/factory"
	"github.com/warp/club-dues/lock"
	"github.com/warp/club-dues/notify"
	"github.com/warp/club-dues/observability"
	"github.com/warp/club-dues/store/sqlite"
)

// App is the assembled engine.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *sqlite.Store
	Metrics *observability.Metrics
	Jobs    *api.Jobs
	Lock    api.RunLock

	closers []func() error
}

// New opens the store and builds the engines. Close releases everything.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}
	a.closers = append(a.closers, store.Close)

	catalog, err := notify.NewCatalog(cfg.Locale)
	if err != nil {
		a.Close()
		return nil, err
	}

	sender, err := a.newSender(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.Lock = lock.NewRedisLock(client, cfg.LockPrefix)
	}

	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = observability.NewMetrics(registry)
	}

	a.Jobs = api.NewJobs(
		dues.NewChargeGenerator(store, store, store, store, store, logger),
		dues.NewStatusTransitioner(store, store, logger),
		dues.NewReminderDispatcher(store, store, store, store, sender, store, catalog, logger),
		a.Metrics, loc, logger,
	)
	return a, nil
}

func (a *App) newSender(ctx context.Context) (dues.PushSender, error) {
	switch a.Config.PushBackend {
	case "", "log":
		return notify.NewLogSender(a.Logger), nil
	case "pubsub":
		publisher, err := notify.NewGooglePublisher(ctx, notify.PubSubConfig{
			ProjectID:    a.Config.PubSubProject,
			Topic:        a.Config.PubSubTopic,
			EmulatorHost: a.Config.PubSubEmulatorHost,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		return notify.NewPubSubSender(publisher, a.Config.PubSubTopic), nil
	default:
		return nil, fmt.Errorf("unknown push backend %q", a.Config.PushBackend)
	}
}

// Seed loads a JSON or YAML fixture file into the store.
func (a *App) Seed(ctx context.Context, path string) error {
	fx, err := factory.NewFixtureFactory().ParseFile(path)
	if err != nil {
		return err
	}
	if err := factory.Load(ctx, a.Store, fx); err != nil {
		return err
	}
	a.Logger.Info().
		Str("file", path).
		Int("clubs", len(fx.Clubs)).
		Int("members", len(fx.Memberships)).
		Int("charges", len(fx.Charges)).
		Msg("fixture loaded")
	return nil
}

// Schedules returns the configured cron specs.
func (a *App) Schedules() api.Schedules {
	return api.Schedules{
		Generate:  a.Config.GenerateSchedule,
		Overdue:   a.Config.OverdueSchedule,
		Reminders: a.Config.ReminderSchedule,
	}
}

// RetryPolicy returns how failed scheduled runs are retried.
func (a *App) RetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		MaxRetries:   a.Config.JobRetries,
		InitialDelay: a.Config.JobRetryDelay,
		MaxDelay:     a.Config.JobRetryMaxDelay,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
