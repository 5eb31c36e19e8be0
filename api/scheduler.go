/*
scheduler.go - Automated daily dues scheduler

PURPOSE:
  Registers the three daily entry points on a cron scheduler:
    generation  (default "0 5 * * *")
    overdue     (default "30 0 * * *")
    reminders   (default "0 10 * * *")

DESIGN:
  - robfig/cron/v3 in the configured time zone
  - SkipIfStillRunning: a slow run is never overlapped by the next one
  - Recover: a panicking job is logged, the scheduler keeps running
  - Errors are logged and metered by Jobs. A run that returns an error
    (club or charge enumeration failed) is retried with exponential
    backoff up to RetryPolicy.MaxRetries times, against the same tick
    time so a retry still bills the trigger day. Retries are safe
    because every charge write is keyed.
  - With a RunLock set (multi-replica deployments) each cron tick first
    takes the job's lock; replicas that lose the race skip the tick.
    A lock backend error runs the job anyway.

USAGE:
  sched, err := NewDuesScheduler(jobs, DefaultSchedules(), logger)
  sched.Start()
  // ... later
  <-sched.Stop().Done()

SEE ALSO:
  - jobs.go: What each entry point runs
  - handlers.go: Manual trigger endpoints
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/club-dues/dues"
)

// Schedules holds the cron specs (5-field, standard syntax).
type Schedules struct {
	Generate  string
	Overdue   string
	Reminders string
}

// DefaultSchedules returns the production timetable.
func DefaultSchedules() Schedules {
	return Schedules{
		Generate:  "0 5 * * *",
		Overdue:   "30 0 * * *",
		Reminders: "0 10 * * *",
	}
}

// RunLock serializes a job across processes. unlock is nil when ok is false.
type RunLock interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func() error, ok bool, err error)
}

// RetryPolicy bounds how a failed scheduled run is retried.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy retries three times, 1m, 2m then 4m apart (with jitter).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute, MaxDelay: 15 * time.Minute}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	defaults := DefaultRetryPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaults.InitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
}

// DefaultLockTTL bounds how long a crashed holder blocks a job.
const DefaultLockTTL = 30 * time.Minute

// DuesScheduler runs the daily sweeps.
type DuesScheduler struct {
	Jobs      *Jobs
	Schedules Schedules

	// Set before Start.
	Retry   RetryPolicy
	Lock    RunLock
	LockTTL time.Duration

	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  zerolog.Logger

	// stopping cuts retry waits short on Stop.
	stopping context.Context
	stop     context.CancelFunc
}

// NewDuesScheduler registers all three jobs. It fails on a bad cron spec.
func NewDuesScheduler(jobs *Jobs, schedules Schedules, logger zerolog.Logger) (*DuesScheduler, error) {
	log := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}

	s := &DuesScheduler{
		Jobs:      jobs,
		Schedules: schedules,
		cron: cron.New(
			cron.WithLocation(jobs.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Retry:   DefaultRetryPolicy(),
		entries: make(map[string]cron.EntryID),
		logger:  log,
	}
	s.stopping, s.stop = context.WithCancel(context.Background())

	for _, job := range []struct {
		name string
		spec string
		run  func(now time.Time) error
	}{
		{"generate", schedules.Generate, s.generate},
		{"overdue", schedules.Overdue, s.overdue},
		{"reminders", schedules.Reminders, s.remind},
	} {
		name, run := job.name, job.run
		id, err := s.cron.AddFunc(job.spec, s.guarded(name, func() { _ = s.runWithRetry(name, run) }))
		if err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
		s.entries[job.name] = id
	}
	return s, nil
}

// Start begins the scheduler in its own goroutine.
func (s *DuesScheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("generate", s.Schedules.Generate).
		Str("overdue", s.Schedules.Overdue).
		Str("reminders", s.Schedules.Reminders).
		Str("timezone", s.Jobs.Location.String()).
		Msg("scheduler started")
}

// Stop stops scheduling. The returned context is done once running jobs
// have finished.
func (s *DuesScheduler) Stop() context.Context {
	s.stop()
	ctx := s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
	return ctx
}

// RunGenerateNow triggers daily generation immediately (for testing/admin).
// It runs once; only cron ticks retry.
func (s *DuesScheduler) RunGenerateNow() error { return s.generate(s.Jobs.Now()) }

// RunOverdueNow triggers the overdue sweep immediately.
func (s *DuesScheduler) RunOverdueNow() error { return s.overdue(s.Jobs.Now()) }

// RunRemindersNow triggers the reminder sweep immediately.
func (s *DuesScheduler) RunRemindersNow() error { return s.remind(s.Jobs.Now()) }

func (s *DuesScheduler) generate(now time.Time) error {
	_, err := s.Jobs.Generate(context.Background(), "", now)
	return err
}

func (s *DuesScheduler) overdue(now time.Time) error {
	_, err := s.Jobs.Overdue(context.Background(), "", now)
	return err
}

func (s *DuesScheduler) remind(now time.Time) error {
	_, err := s.Jobs.Remind(context.Background(), "", now)
	return err
}

// runWithRetry runs one tick, retrying whole-run failures under s.Retry.
// Every attempt uses the time the tick fired.
func (s *DuesScheduler) runWithRetry(name string, run func(now time.Time) error) error {
	now := s.Jobs.Now()
	attempts := 0

	err := backoff.RetryNotify(func() error {
		attempts++
		err := run(now)
		if err != nil && dues.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.Retry.backOff(s.stopping), func(err error, wait time.Duration) {
		s.logger.Warn().Err(err).
			Str("job", name).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("scheduled run failed, retrying")
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Int("attempts", attempts).Msg("scheduled run failed")
	}
	return err
}

// guarded wraps a cron entry with the run lock, when one is set. The lock
// is held across retries.
func (s *DuesScheduler) guarded(name string, run func()) func() {
	return func() {
		if s.Lock == nil {
			run()
			return
		}
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}

		unlock, ok, err := s.Lock.TryLock(context.Background(), name, ttl)
		if err != nil {
			s.logger.Warn().Err(err).Str("job", name).Msg("run lock unavailable, running unlocked")
			run()
			return
		}
		if !ok {
			s.logger.Info().Str("job", name).Msg("job held by another instance, skipping")
			return
		}
		defer func() {
			if err := unlock(); err != nil {
				s.logger.Warn().Err(err).Str("job", name).Msg("run lock release failed")
			}
		}()
		run()
	}
}

// NextRuns returns when each job fires next. Zero before Start.
func (s *DuesScheduler) NextRuns() map[string]time.Time {
	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
