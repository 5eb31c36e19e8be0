package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/club-dues/dues"
)

func TestLifecycle_GenerateRerunThenOverdue(t *testing.T) {
	// GIVEN: Club A, due day 25, fee 30 USD, two active members, no exemptions
	// WHEN: Generating on the trigger day, re-running, then sweeping 11 days
	//       after the due date
	// THEN: 2 created, then 0 created / 2 skipped, then both overdue

	mem := newTestStore(t)
	seedClub(t, mem, "club-a", 30, 25, "user-1", "user-2")
	ctx := context.Background()

	gen := newTestGenerator(mem)
	first, err := gen.RunDaily(ctx, triggerDay)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	charges := listCharges(t, mem, "club-a")
	require.Len(t, charges, 2)
	for _, c := range charges {
		assert.Equal(t, dues.StatusUnpaid, c.Status)
		assert.Equal(t, "30.00", c.Amount.StringFixed(2))
	}

	second, err := gen.RunDaily(ctx, triggerDay)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	sweepDay := time.Date(2025, time.April, 5, 0, 30, 0, 0, time.UTC)
	sweep, err := newTestTransitioner(mem).Sweep(ctx, sweepDay, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, sweep.Transitioned)

	for _, c := range listCharges(t, mem, "club-a") {
		assert.Equal(t, dues.StatusOverdue, c.Status)
	}
}
