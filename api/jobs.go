/*
jobs.go - The three dues sweeps behind one timed, logged, metered facade

PURPOSE:
  Both trigger surfaces (cron scheduler and admin endpoints) call the
  engines through Jobs so every run is timed, logged and recorded in
  Prometheus the same way.

ENTRY POINTS:
  Generate:          RunDaily / RunDailyForClub (trigger-day gated)
  GenerateForPeriod: Explicit period, bypasses the trigger day
  Overdue:           unpaid -> overdue sweep
  Reminders:         due-soon push + in-app notification sweep

TIME:
  Now() is the current instant in the configured location. The engines
  take calendar dates from the wall clock of the time they are given.

SEE ALSO:
  - scheduler.go: Cron wiring
  - handlers.go: Manual trigger endpoints
*/
package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/observability"
)

// Jobs runs the dues engines.
type Jobs struct {
	Generator *dues.ChargeGenerator
	Overdues  *dues.StatusTransitioner
	Reminders *dues.ReminderDispatcher

	// Metrics is optional.
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
	Location *time.Location

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewJobs wires the three engines. loc nil means UTC.
func NewJobs(gen *dues.ChargeGenerator, overdue *dues.StatusTransitioner, reminders *dues.ReminderDispatcher,
	metrics *observability.Metrics, loc *time.Location, logger zerolog.Logger) *Jobs {
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{
		Generator: gen,
		Overdues:  overdue,
		Reminders: reminders,
		Metrics:   metrics,
		Logger:    logger.With().Str("component", "jobs").Logger(),
		Location:  loc,
	}
}

// Now returns the current time in the job location.
func (j *Jobs) Now() time.Time {
	clock := j.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().In(j.Location)
}

// Generate runs daily generation. An empty clubID means every club.
func (j *Jobs) Generate(ctx context.Context, clubID dues.ClubID, now time.Time) (dues.RunResult, error) {
	start := time.Now()
	res, err := j.Generator.RunDailyForClub(ctx, clubID, now)
	j.finish(observability.JobGenerate, clubID, now, start, err)
	if j.Metrics != nil {
		j.Metrics.RecordGenerate(res, time.Since(start), err)
	}
	return res, err
}

// GenerateForPeriod bills an explicit period for one club or all clubs.
func (j *Jobs) GenerateForPeriod(ctx context.Context, clubID dues.ClubID, period dues.YearMonth, now time.Time) (dues.RunResult, error) {
	start := time.Now()
	res, err := j.Generator.GenerateForPeriod(ctx, clubID, period, now)
	j.finish(observability.JobGenerate, clubID, now, start, err)
	if j.Metrics != nil {
		j.Metrics.RecordGenerate(res, time.Since(start), err)
	}
	return res, err
}

// Overdue runs the overdue sweep.
func (j *Jobs) Overdue(ctx context.Context, clubID dues.ClubID, now time.Time) (dues.SweepResult, error) {
	start := time.Now()
	res, err := j.Overdues.Sweep(ctx, now, dues.ChargeFilter{ClubID: clubID})
	j.finish(observability.JobOverdue, clubID, now, start, err)
	if j.Metrics != nil {
		j.Metrics.RecordOverdue(res, time.Since(start), err)
	}
	return res, err
}

// Remind runs the reminder sweep.
func (j *Jobs) Remind(ctx context.Context, clubID dues.ClubID, now time.Time) (dues.ReminderResult, error) {
	start := time.Now()
	res, err := j.Reminders.Dispatch(ctx, now, dues.ChargeFilter{ClubID: clubID})
	j.finish(observability.JobReminders, clubID, now, start, err)
	if j.Metrics != nil {
		j.Metrics.RecordReminders(res, time.Since(start), err)
	}
	return res, err
}

func (j *Jobs) finish(job string, clubID dues.ClubID, now, start time.Time, err error) {
	ev := j.Logger.Info()
	if err != nil {
		ev = j.Logger.Error().Err(err)
	}
	if clubID != "" {
		ev = ev.Str("club_id", string(clubID))
	}
	ev.Str("job", job).
		Str("as_of", dues.DateOf(now).Format("2006-01-02")).
		Dur("elapsed", time.Since(start)).
		Msg("job finished")
}
