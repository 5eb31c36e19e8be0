package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/club-dues/dues"
	memstore "github.com/warp/club-dues/dues/store"
	"github.com/warp/club-dues/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedClub(t *testing.T, store *sqlite.Store, users ...dues.UserID) {
	ctx := context.Background()
	require.NoError(t, store.SaveClub(ctx, dues.Club{ID: "club-a", Name: "Hikers"}))
	require.NoError(t, store.SaveFeeConfig(ctx, dues.FeeConfig{
		ClubID: "club-a", MonthlyFee: dues.MustParseMoney("30"), DueDay: 25, Currency: "USD",
	}))
	for _, u := range users {
		require.NoError(t, store.SaveMembership(ctx, dues.Membership{ClubID: "club-a", UserID: u, Status: dues.MembershipActive}))
	}
}

func march(id dues.ChargeID, user dues.UserID) dues.Charge {
	at := time.Date(2025, time.March, 15, 5, 0, 0, 0, time.UTC)
	return dues.Charge{
		ID:        id,
		ClubID:    "club-a",
		UserID:    user,
		DuesType:  dues.DuesMonthly,
		Period:    dues.MonthlyPeriod(dues.NewYearMonth(2025, time.March)),
		Amount:    dues.MustParseMoney("30"),
		Currency:  "USD",
		Status:    dues.StatusUnpaid,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestStore_ClubsAndFeeConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedClub(t, store)
	require.NoError(t, store.SaveClub(ctx, dues.Club{ID: "club-b", Name: "Readers"}))

	clubs, err := store.ListClubs(ctx)
	require.NoError(t, err)
	require.Len(t, clubs, 2)
	assert.Equal(t, dues.ClubID("club-a"), clubs[0].ID)

	club, err := store.GetClub(ctx, "club-a")
	require.NoError(t, err)
	assert.Equal(t, "Hikers", club.Name)

	_, err = store.GetClub(ctx, "missing")
	assert.ErrorIs(t, err, dues.ErrClubNotFound)

	cfg, err := store.GetFeeConfig(ctx, "club-a")
	require.NoError(t, err)
	assert.Equal(t, "30", cfg.MonthlyFee.String())
	assert.Equal(t, 25, cfg.DueDay)

	empty, err := store.GetFeeConfig(ctx, "club-b")
	require.NoError(t, err)
	assert.False(t, empty.Billable())
}

func TestStore_ActiveMembersOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedClub(t, store, "user-1", "user-2")
	require.NoError(t, store.SaveMembership(ctx, dues.Membership{ClubID: "club-a", UserID: "user-2", Status: dues.MembershipInactive}))

	members, err := store.ListActiveMembers(ctx, "club-a")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, dues.UserID("user-1"), members[0].UserID)
}

func TestStore_ExemptionsRoundTripInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	q1 := dues.YearMonthRange{Start: dues.NewYearMonth(2025, time.January), End: dues.NewYearMonth(2025, time.March)}

	grants := []dues.ExemptionGrant{
		dues.QuarterlyExemption{GrantScope: dues.GrantScope{ID: "g2", ClubID: "club-a", UserID: "user-1", Range: q1}},
		dues.CustomExemption{
			GrantScope:      dues.GrantScope{ID: "g1", ClubID: "club-a", UserID: "user-1", Range: q1},
			CreditApply:     dues.NewYearMonth(2025, time.March),
			RemainingCredit: dues.MustParseMoney("5.50"),
		},
	}
	for _, g := range grants {
		require.NoError(t, store.SaveExemption(ctx, g))
	}

	loaded, err := store.ListExemptions(ctx, "club-a", "user-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, dues.GrantID("g2"), loaded[0].Scope().ID)
	assert.Equal(t, dues.ExemptionQuarterly, loaded[0].Kind())

	custom, ok := loaded[1].(dues.CustomExemption)
	require.True(t, ok)
	assert.Equal(t, dues.NewYearMonth(2025, time.March), custom.CreditApply)
	assert.Equal(t, "5.5", custom.RemainingCredit.String())
	assert.Equal(t, q1, custom.Range)

	err = store.SaveExemption(ctx, grants[0])
	assert.ErrorIs(t, err, dues.ErrInvalidGrant)
}

// =============================================================================
// CHARGES
// =============================================================================

func TestStore_CreateChargeIfAbsent_ConditionalOnKey(t *testing.T) {
	// GIVEN: A charge for (club-a, user-1, monthly, 2025-03)
	// WHEN: Creating a second charge with the same key and a new ID
	// THEN: created=false, no error, one row

	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateChargeIfAbsent(ctx, march("c1", "user-1"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateChargeIfAbsent(ctx, march("c2", "user-1"))
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := store.ChargeExists(ctx, march("", "user-1").Key())
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ChargeExists(ctx, march("", "user-9").Key())
	require.NoError(t, err)
	assert.False(t, exists)

	charges, err := store.ListCharges(ctx, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, charges, 1)
}

func TestStore_CreateChargeIfAbsent_IDCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateChargeIfAbsent(ctx, march("c1", "user-1"))
	require.NoError(t, err)

	_, err = store.CreateChargeIfAbsent(ctx, march("c1", "user-2"))
	assert.ErrorIs(t, err, dues.ErrDuplicateCharge)
}

func TestStore_ChargeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := march("c1", "user-1")
	original := dues.MustParseMoney("25")
	credit := dues.MustParseMoney("5")
	c.Amount = dues.MustParseMoney("20")
	c.OriginalAmount = &original
	c.CreditApplied = &credit

	_, err := store.CreateChargeIfAbsent(ctx, c)
	require.NoError(t, err)

	got, err := store.GetCharge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c.Period, got.Period)
	assert.Equal(t, "20", got.Amount.String())
	require.NotNil(t, got.OriginalAmount)
	assert.Equal(t, "25", got.OriginalAmount.String())
	assert.Equal(t, "5", got.CreditApplied.String())
	assert.Equal(t, c.CreatedAt, got.CreatedAt)
	assert.Equal(t, dues.StatusUnpaid, got.Status)

	_, err = store.GetCharge(ctx, "missing")
	assert.ErrorIs(t, err, dues.ErrChargeNotFound)
}

func TestStore_ListChargesByStatusFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	yearly := march("y1", "user-1")
	yearly.DuesType = dues.DuesYearly
	yearly.Period = dues.YearlyPeriod(2026)
	other := march("o1", "user-1")
	other.ClubID = "club-b"

	for _, c := range []dues.Charge{march("c1", "user-1"), yearly, other} {
		_, err := store.CreateChargeIfAbsent(ctx, c)
		require.NoError(t, err)
	}

	all, err := store.ListChargesByStatus(ctx, dues.StatusUnpaid, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	clubA, err := store.ListChargesByStatus(ctx, dues.StatusUnpaid, dues.ChargeFilter{ClubID: "club-a"})
	require.NoError(t, err)
	assert.Len(t, clubA, 2)

	yearlies, err := store.ListChargesByStatus(ctx, dues.StatusUnpaid, dues.ChargeFilter{DuesTypes: []dues.DuesType{dues.DuesYearly}})
	require.NoError(t, err)
	require.Len(t, yearlies, 1)
	assert.Equal(t, dues.YearlyPeriod(2026), yearlies[0].Period)

	overdue, err := store.ListChargesByStatus(ctx, dues.StatusOverdue, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestStore_MarkOverdueOnlyFromUnpaid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.CreateChargeIfAbsent(ctx, march("c1", "user-1"))
	require.NoError(t, err)
	at := time.Date(2025, time.March, 26, 0, 30, 0, 0, time.UTC)

	changed, err := store.MarkOverdue(ctx, "c1", at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.MarkOverdue(ctx, "c1", at)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetCharge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, dues.StatusOverdue, got.Status)
	assert.Equal(t, at, got.UpdatedAt)
}

func TestStore_IncrementReminderCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.CreateChargeIfAbsent(ctx, march("c1", "user-1"))
	require.NoError(t, err)
	at := time.Date(2025, time.March, 22, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.IncrementReminderCount(ctx, "c1", at))
	require.NoError(t, store.IncrementReminderCount(ctx, "c1", at))

	got, err := store.GetCharge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReminderCount)

	assert.ErrorIs(t, store.IncrementReminderCount(ctx, "missing", at), dues.ErrChargeNotFound)
}

// =============================================================================
// TOKENS & NOTIFICATIONS
// =============================================================================

func TestStore_PushTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	token, err := store.PushToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.SavePushToken(ctx, "user-1", "old"))
	require.NoError(t, store.SavePushToken(ctx, "user-1", "new"))

	token, err = store.PushToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new", token)
}

func TestStore_NotificationsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, time.March, 22, 10, 0, 0, 0, time.UTC)

	for i, id := range []dues.NotificationID{"n1", "n2"} {
		require.NoError(t, store.SaveNotification(ctx, dues.Notification{
			ID:        id,
			UserID:    "user-1",
			ClubID:    "club-a",
			ChargeID:  "c1",
			Kind:      dues.NotificationDuesReminder,
			Title:     "Dues",
			Body:      "due soon",
			Data:      map[string]string{"charge_id": "c1"},
			CreatedAt: day.AddDate(0, 0, i),
		}))
	}

	notes, err := store.ListNotifications(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, dues.NotificationID("n2"), notes[0].ID)
	assert.Equal(t, "c1", notes[0].Data["charge_id"])
	assert.Equal(t, dues.ChargeID("c1"), notes[0].ChargeID)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedClub(t, store, "user-1")
	_, err := store.CreateChargeIfAbsent(ctx, march("c1", "user-1"))
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	clubs, err := store.ListClubs(ctx)
	require.NoError(t, err)
	assert.Empty(t, clubs)
	charges, err := store.ListCharges(ctx, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Empty(t, charges)
}

// =============================================================================
// ENGINE INTEGRATION
// =============================================================================

func TestStore_GeneratorIdempotentAcrossRuns(t *testing.T) {
	store := newTestStore(t)
	seedClub(t, store, "user-1", "user-2")
	gen := dues.NewChargeGenerator(store, store, store, store, store, zerolog.Nop())
	ctx := context.Background()
	trigger := time.Date(2025, time.March, 15, 5, 0, 0, 0, time.UTC)

	first, err := gen.RunDaily(ctx, trigger)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	second, err := gen.RunDaily(ctx, trigger)
	require.NoError(t, err)
	assert.Equal(t, dues.RunResult{ClubsTriggered: 1, Skipped: 2}, second)

	sweep, err := dues.NewStatusTransitioner(store, store, zerolog.Nop()).
		Sweep(ctx, time.Date(2025, time.April, 5, 0, 30, 0, 0, time.UTC), dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, sweep.Transitioned)
}

func TestStore_JoinDueDateFollowsSweepZone(t *testing.T) {
	ctx := context.Background()
	seoul := time.FixedZone("KST", 9*3600)

	// GIVEN: A join charge created early morning in Seoul, which is still
	// the previous day in UTC, saved to both stores
	created := time.Date(2025, time.March, 1, 8, 0, 0, 0, seoul)
	join := dues.Charge{
		ID:        "join-1",
		ClubID:    "club-a",
		UserID:    "user-1",
		DuesType:  dues.DuesJoin,
		Period:    dues.MonthlyPeriod(dues.NewYearMonth(2025, time.March)),
		Amount:    dues.MustParseMoney("10"),
		Currency:  "USD",
		Status:    dues.StatusUnpaid,
		CreatedAt: created,
		UpdatedAt: created,
	}

	db := newTestStore(t)
	seedClub(t, db)
	mem := memstore.NewMemory()
	require.NoError(t, mem.SaveClub(ctx, dues.Club{ID: "club-a", Name: "Hikers"}))
	require.NoError(t, mem.SaveFeeConfig(ctx, dues.FeeConfig{ClubID: "club-a", MonthlyFee: dues.MustParseMoney("30"), DueDay: 25}))

	stores := map[string]interface {
		dues.ChargeStore
		dues.FeeConfigReader
	}{"sqlite": db, "memory": mem}

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := st.CreateChargeIfAbsent(ctx, join)
			require.NoError(t, err)
			sweeper := dues.NewStatusTransitioner(st, st, zerolog.Nop())

			// WHEN: The sweep runs on the due date (Seoul 2025-03-31)
			onDue, err := sweeper.Sweep(ctx, time.Date(2025, time.March, 31, 7, 0, 0, 0, seoul), dues.ChargeFilter{})

			// THEN: The charge stays unpaid until the next day
			require.NoError(t, err)
			assert.Equal(t, 0, onDue.Transitioned)

			after, err := sweeper.Sweep(ctx, time.Date(2025, time.April, 1, 0, 30, 0, 0, seoul), dues.ChargeFilter{})
			require.NoError(t, err)
			assert.Equal(t, 1, after.Transitioned)
		})
	}
}
