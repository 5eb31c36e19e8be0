package dues_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/dues/store"
)

func grantScope(id string, start, end dues.YearMonth) dues.GrantScope {
	return dues.GrantScope{
		ID:     dues.GrantID(id),
		ClubID: "club-a",
		UserID: "user-1",
		Range:  dues.YearMonthRange{Start: start, End: end},
	}
}

var (
	jan25 = dues.NewYearMonth(2025, time.January)
	mar25 = dues.NewYearMonth(2025, time.March)
	jun25 = dues.NewYearMonth(2025, time.June)
	dec25 = dues.NewYearMonth(2025, time.December)
)

func TestResolveGrants_YearlyBeatsQuarterlyAndCredit(t *testing.T) {
	// GIVEN: Overlapping quarterly, yearly and custom credit grants for March
	// WHEN: Resolving March
	// THEN: The yearly grant exempts; no credit is evaluated

	grants := []dues.ExemptionGrant{
		dues.CustomExemption{GrantScope: grantScope("custom", jan25, dec25), CreditApply: mar25, RemainingCredit: dues.NewMoney(5)},
		dues.QuarterlyExemption{GrantScope: grantScope("quarterly", jan25, mar25)},
		dues.YearlyExemption{GrantScope: grantScope("yearly", jan25, dec25)},
	}

	res := dues.ResolveGrants(grants, mar25)

	assert.True(t, res.Exempt)
	assert.True(t, res.Credit.IsZero())
	assert.Equal(t, dues.GrantID("yearly"), res.GrantID)
}

func TestResolveGrants_QuarterlyExempts(t *testing.T) {
	grants := []dues.ExemptionGrant{
		dues.YearlyExemption{GrantScope: grantScope("yearly-2024", dues.NewYearMonth(2024, time.January), dues.NewYearMonth(2024, time.December))},
		dues.QuarterlyExemption{GrantScope: grantScope("q1", jan25, mar25)},
	}

	res := dues.ResolveGrants(grants, mar25)

	assert.True(t, res.Exempt)
	assert.Equal(t, dues.GrantID("q1"), res.GrantID)
}

func TestResolveGrants_RangeEndsAreInclusive(t *testing.T) {
	grants := []dues.ExemptionGrant{
		dues.QuarterlyExemption{GrantScope: grantScope("q1", jan25, mar25)},
	}

	assert.True(t, dues.ResolveGrants(grants, jan25).Exempt)
	assert.True(t, dues.ResolveGrants(grants, mar25).Exempt)
	assert.False(t, dues.ResolveGrants(grants, dues.NewYearMonth(2025, time.April)).Exempt)
}

func TestResolveGrants_CustomCreditDoesNotExempt(t *testing.T) {
	// GIVEN: A custom grant with 5.00 credit applicable to March
	// WHEN: Resolving March and April
	// THEN: March gets the credit without exemption; April gets nothing

	grants := []dues.ExemptionGrant{
		dues.CustomExemption{GrantScope: grantScope("custom", jan25, jun25), CreditApply: mar25, RemainingCredit: dues.NewMoney(5)},
	}

	march := dues.ResolveGrants(grants, mar25)
	assert.False(t, march.Exempt)
	assert.True(t, dues.NewMoney(5).Equal(march.Credit))
	assert.Equal(t, dues.GrantID("custom"), march.GrantID)

	april := dues.ResolveGrants(grants, dues.NewYearMonth(2025, time.April))
	assert.False(t, april.Exempt)
	assert.True(t, april.Credit.IsZero())
}

func TestResolveGrants_SpentCreditIgnored(t *testing.T) {
	grants := []dues.ExemptionGrant{
		dues.CustomExemption{GrantScope: grantScope("spent", jan25, jun25), CreditApply: mar25, RemainingCredit: dues.NewMoney(0)},
		dues.CustomExemption{GrantScope: grantScope("fresh", jan25, jun25), CreditApply: mar25, RemainingCredit: dues.NewMoney(3)},
	}

	res := dues.ResolveGrants(grants, mar25)

	assert.Equal(t, dues.GrantID("fresh"), res.GrantID)
	assert.True(t, dues.NewMoney(3).Equal(res.Credit))
}

func TestResolveGrants_SameKindOverlapFirstMatchWins(t *testing.T) {
	grants := []dues.ExemptionGrant{
		dues.CustomExemption{GrantScope: grantScope("first", jan25, jun25), CreditApply: mar25, RemainingCredit: dues.NewMoney(2)},
		dues.CustomExemption{GrantScope: grantScope("second", jan25, jun25), CreditApply: mar25, RemainingCredit: dues.NewMoney(7)},
	}

	res := dues.ResolveGrants(grants, mar25)

	assert.Equal(t, dues.GrantID("first"), res.GrantID)
	assert.True(t, dues.NewMoney(2).Equal(res.Credit))
}

func TestResolveGrants_NoGrants(t *testing.T) {
	res := dues.ResolveGrants(nil, mar25)

	assert.False(t, res.Exempt)
	assert.True(t, res.Credit.IsZero())
	assert.Empty(t, res.GrantID)
}

func TestExemptionResolver_ReadsMemberGrantsOnly(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SaveExemption(ctx, dues.YearlyExemption{GrantScope: grantScope("yearly", jan25, dec25)}))
	other := grantScope("other", jan25, dec25)
	other.UserID = "user-2"
	require.NoError(t, mem.SaveExemption(ctx, dues.YearlyExemption{GrantScope: other}))

	resolver := dues.NewExemptionResolver(mem)

	res, err := resolver.Resolve(ctx, "club-a", "user-1", mar25)
	require.NoError(t, err)
	assert.Equal(t, dues.GrantID("yearly"), res.GrantID)

	res, err = resolver.Resolve(ctx, "club-a", "user-3", mar25)
	require.NoError(t, err)
	assert.False(t, res.Exempt)
}

func TestNewExemptionGrant_Validates(t *testing.T) {
	scope := grantScope("g", jan25, mar25)

	g, err := dues.NewExemptionGrant(dues.ExemptionCustom, scope, mar25, dues.NewMoney(5))
	require.NoError(t, err)
	assert.Equal(t, dues.ExemptionCustom, g.Kind())

	_, err = dues.NewExemptionGrant("monthly", scope, dues.YearMonth{}, dues.NewMoney(0))
	assert.ErrorIs(t, err, dues.ErrInvalidGrant)

	backwards := grantScope("b", mar25, jan25)
	_, err = dues.NewExemptionGrant(dues.ExemptionYearly, backwards, dues.YearMonth{}, dues.NewMoney(0))
	assert.ErrorIs(t, err, dues.ErrInvalidGrant)
}
