package api

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/dues/store"
	"github.com/warp/club-dues/factory"
	"github.com/warp/club-dues/notify"
	"github.com/warp/club-dues/observability"
)

func newMemoryJobs(t *testing.T, now time.Time) (*Jobs, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	catalog, err := notify.NewCatalog("en")
	require.NoError(t, err)

	logger := zerolog.Nop()
	jobs := NewJobs(
		dues.NewChargeGenerator(mem, mem, mem, mem, mem, logger),
		dues.NewStatusTransitioner(mem, mem, logger),
		dues.NewReminderDispatcher(mem, mem, mem, mem, notify.NewLogSender(logger), mem, catalog, logger),
		observability.NewMetrics(prometheus.NewRegistry()),
		time.UTC, logger,
	)
	jobs.Clock = func() time.Time { return now }

	fx, err := factory.NewFixtureFactory().Parse([]byte(monthlyBasicsFixture))
	require.NoError(t, err)
	require.NoError(t, factory.Load(context.Background(), mem, fx))
	return jobs, mem
}

func TestNewDuesScheduler_RejectsBadSpec(t *testing.T) {
	jobs, _ := newMemoryJobs(t, testNow)
	schedules := DefaultSchedules()
	schedules.Overdue = "every morning"

	_, err := NewDuesScheduler(jobs, schedules, zerolog.Nop())

	assert.ErrorContains(t, err, "schedule overdue")
}

func TestDuesScheduler_NextRuns(t *testing.T) {
	jobs, _ := newMemoryJobs(t, testNow)
	jobs.Location = time.FixedZone("KST", 9*3600)

	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)

	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	next := sched.NextRuns()
	require.Len(t, next, 3)
	for name, at := range next {
		assert.False(t, at.IsZero(), name)
	}
	gen := next["generate"].In(jobs.Location)
	assert.Equal(t, 5, gen.Hour())
	assert.Equal(t, 0, gen.Minute())
	rem := next["reminders"].In(jobs.Location)
	assert.Equal(t, 10, rem.Hour())
}

func TestDuesScheduler_RunNow(t *testing.T) {
	// GIVEN: A due-day-25 club and a clock on its trigger day
	jobs, mem := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)

	// WHEN: Each entry point is run by hand
	require.NoError(t, sched.RunGenerateNow())
	require.NoError(t, sched.RunOverdueNow())
	require.NoError(t, sched.RunRemindersNow())

	// THEN: Charges exist and every job recorded one successful run
	charges, err := mem.ListCharges(context.Background(), dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, charges, 2)

	for _, job := range []string{observability.JobGenerate, observability.JobOverdue, observability.JobReminders} {
		assert.Equal(t, 1.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(job, "success")), job)
	}
}

func TestJobs_EnumerationErrorIsRecorded(t *testing.T) {
	jobs, mem := newMemoryJobs(t, testNow)
	mem.FailListClubs(assert.AnError)

	_, err := jobs.Generate(context.Background(), "", jobs.Now())

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "error")))
}

type fakeLock struct {
	held     bool
	err      error
	acquired []string
	released int
}

func (f *fakeLock) TryLock(_ context.Context, name string, ttl time.Duration) (func() error, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held {
		return nil, false, nil
	}
	f.acquired = append(f.acquired, name)
	return func() error { f.released++; return nil }, true, nil
}

func TestDuesScheduler_GuardedByRunLock(t *testing.T) {
	tests := []struct {
		name        string
		lock        *fakeLock
		wantCharges int
		wantRelease int
	}{
		{"lock free", &fakeLock{}, 2, 1},
		{"held elsewhere", &fakeLock{held: true}, 0, 0},
		{"backend down", &fakeLock{err: assert.AnError}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A scheduler sharing a run lock with other replicas
			jobs, mem := newMemoryJobs(t, testNow)
			sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
			require.NoError(t, err)
			sched.Lock = tt.lock

			// WHEN: The generate tick fires
			sched.guarded("generate", func() { _ = sched.RunGenerateNow() })()

			// THEN: It only bills when this replica ran the job
			charges, err := mem.ListCharges(context.Background(), dues.ChargeFilter{})
			require.NoError(t, err)
			assert.Len(t, charges, tt.wantCharges)
			assert.Equal(t, tt.wantRelease, tt.lock.released)
		})
	}
}

func fastRetry(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDuesScheduler_RetriesFailedRun(t *testing.T) {
	// GIVEN: The trigger day, and club enumeration failing twice
	jobs, mem := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)
	sched.Retry = fastRetry(3)
	mem.FailListClubsTimes(assert.AnError, 2)

	// WHEN: The generate tick fires
	err = sched.runWithRetry("generate", sched.generate)

	// THEN: The third attempt bills both members on the same day
	require.NoError(t, err)
	charges, err := mem.ListCharges(context.Background(), dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, charges, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "success")))
}

func TestDuesScheduler_RetryKeepsTickTime(t *testing.T) {
	// GIVEN: A clock that moves past the trigger day after the first attempt
	jobs, mem := newMemoryJobs(t, testNow)
	calls := 0
	jobs.Clock = func() time.Time {
		calls++
		if calls == 1 {
			return testNow
		}
		return testNow.AddDate(0, 0, 1)
	}
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)
	sched.Retry = fastRetry(2)
	mem.FailListClubsTimes(assert.AnError, 1)

	// WHEN: The tick fails once and is retried
	require.NoError(t, sched.runWithRetry("generate", sched.generate))

	// THEN: The retry still generates for the day the tick fired
	charges, err := mem.ListCharges(context.Background(), dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, charges, 2)
}

func TestDuesScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	jobs, mem := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)
	sched.Retry = fastRetry(2)
	mem.FailListClubs(assert.AnError)

	err = sched.runWithRetry("generate", sched.generate)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "error")))
}

func TestDuesScheduler_NoRetriesConfigured(t *testing.T) {
	jobs, mem := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)
	sched.Retry = fastRetry(0)
	mem.FailListClubs(assert.AnError)

	err = sched.runWithRetry("generate", sched.generate)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1.0, testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "error")))
}

func TestDuesScheduler_StopCutsRetryWaitShort(t *testing.T) {
	jobs, mem := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)
	sched.Retry = RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}
	mem.FailListClubs(assert.AnError)

	done := make(chan error, 1)
	go func() { done <- sched.runWithRetry("generate", sched.generate) }()

	// Let the first attempt fail before stopping.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(jobs.Metrics.JobRunsTotal.WithLabelValues(observability.JobGenerate, "error")) == 1
	}, time.Second, time.Millisecond)
	<-sched.Stop().Done()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry wait did not end on Stop")
	}
}

func TestDuesScheduler_DefaultRetryPolicy(t *testing.T) {
	jobs, _ := newMemoryJobs(t, testNow)
	sched, err := NewDuesScheduler(jobs, DefaultSchedules(), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, DefaultRetryPolicy(), sched.Retry)
	assert.Equal(t, 3, sched.Retry.MaxRetries)
}
