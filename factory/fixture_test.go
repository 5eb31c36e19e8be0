package factory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/dues/store"
	"github.com/warp/club-dues/factory"
)

const clubFixtureJSON = `{
  "clubs": [
    {
      "id": "club-a",
      "name": "Riverside Runners",
      "monthly_fee": "30",
      "due_day": 25,
      "currency": "usd",
      "members": [
        {"user_id": "user-1", "push_token": "tok-1"},
        {"user_id": "user-2", "status": "inactive"}
      ]
    },
    {"id": "club-b", "name": "Chess Circle"}
  ],
  "exemptions": [
    {"id": "g-1", "club_id": "club-a", "user_id": "user-1", "kind": "custom",
     "start": "2025-01", "end": "2025-12", "credit_apply": "2025-03", "credit": "5"},
    {"id": "g-2", "club_id": "club-a", "user_id": "user-1", "kind": "yearly",
     "start": "2026-01", "end": "2026-12"}
  ],
  "charges": [
    {"id": "ch-1", "club_id": "club-a", "user_id": "user-1", "dues_type": "monthly",
     "period": "2025-02", "amount": "30", "status": "paid",
     "created_at": "2025-01-15T05:00:00Z"},
    {"id": "ch-2", "club_id": "club-a", "user_id": "user-1", "dues_type": "yearly",
     "period": "2025", "amount": "300", "created_at": "2024-12-01T00:00:00Z"}
  ]
}`

const clubFixtureYAML = `
clubs:
  - id: club-a
    name: Riverside Runners
    monthly_fee: "30"
    members:
      - user_id: user-1
        push_token: tok-1
exemptions:
  - id: g-1
    club_id: club-a
    user_id: user-1
    kind: quarterly
    start: 2025-01
    end: 2025-03
`

func TestParse_JSON(t *testing.T) {
	fx, err := factory.NewFixtureFactory().Parse([]byte(clubFixtureJSON))
	require.NoError(t, err)

	require.Len(t, fx.Clubs, 2)
	assert.Equal(t, dues.Club{ID: "club-a", Name: "Riverside Runners"}, fx.Clubs[0])

	require.Len(t, fx.FeeConfigs, 2)
	assert.True(t, fx.FeeConfigs[0].MonthlyFee.Equal(dues.NewMoney(30)))
	assert.Equal(t, "USD", fx.FeeConfigs[0].Currency)
	assert.Equal(t, 25, fx.FeeConfigs[0].DueDay)

	// Defaults for a club with no fee settings
	assert.False(t, fx.FeeConfigs[1].Billable())
	assert.Equal(t, dues.DefaultDueDay, fx.FeeConfigs[1].DueDay)
	assert.Equal(t, dues.DefaultCurrency, fx.FeeConfigs[1].Currency)

	require.Len(t, fx.Memberships, 2)
	assert.Equal(t, dues.MembershipActive, fx.Memberships[0].Status)
	assert.Equal(t, dues.MembershipInactive, fx.Memberships[1].Status)
	assert.Equal(t, []factory.PushToken{{UserID: "user-1", Token: "tok-1"}}, fx.PushTokens)

	require.Len(t, fx.Exemptions, 2)
	custom, ok := fx.Exemptions[0].(dues.CustomExemption)
	require.True(t, ok)
	assert.Equal(t, dues.NewYearMonth(2025, time.March), custom.CreditApply)
	assert.True(t, custom.RemainingCredit.Equal(dues.NewMoney(5)))
	assert.Equal(t, dues.ExemptionYearly, fx.Exemptions[1].Kind())

	require.Len(t, fx.Charges, 2)
	assert.Equal(t, dues.MonthlyPeriod(dues.NewYearMonth(2025, time.February)), fx.Charges[0].Period)
	assert.Equal(t, dues.StatusPaid, fx.Charges[0].Status)
	assert.Equal(t, "USD", fx.Charges[0].Currency)
	assert.Equal(t, dues.YearlyPeriod(2025), fx.Charges[1].Period)
	assert.Equal(t, dues.StatusUnpaid, fx.Charges[1].Status)
}

func TestParseFormat_YAML(t *testing.T) {
	fx, err := factory.NewFixtureFactory().ParseFormat([]byte(clubFixtureYAML), factory.FormatYAML)
	require.NoError(t, err)

	require.Len(t, fx.Clubs, 1)
	require.Len(t, fx.Exemptions, 1)
	assert.Equal(t, dues.ExemptionQuarterly, fx.Exemptions[0].Kind())
	assert.Equal(t, dues.YearMonthRange{
		Start: dues.NewYearMonth(2025, time.January),
		End:   dues.NewYearMonth(2025, time.March),
	}, fx.Exemptions[0].Scope().Range)
}

func TestParseFile_PicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "seed.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(clubFixtureYAML), 0o600))

	fx, err := factory.NewFixtureFactory().ParseFile(yamlPath)
	require.NoError(t, err)
	assert.Len(t, fx.Clubs, 1)

	assert.Equal(t, factory.FormatJSON, factory.FormatForPath("seed.json"))
	assert.Equal(t, factory.FormatYAML, factory.FormatForPath("SEED.YAML"))

	_, err = factory.NewFixtureFactory().ParseFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"clubs": [`},
		{"club without id", `{"clubs": [{"name": "x"}]}`},
		{"due day out of range", `{"clubs": [{"id": "c", "name": "x", "due_day": 32}]}`},
		{"bad fee", `{"clubs": [{"id": "c", "name": "x", "monthly_fee": "thirty"}]}`},
		{"negative fee", `{"clubs": [{"id": "c", "name": "x", "monthly_fee": "-5"}]}`},
		{"unknown member status", `{"clubs": [{"id": "c", "name": "x", "members": [{"user_id": "u", "status": "banned"}]}]}`},
		{"unknown grant kind", `{"exemptions": [{"club_id": "c", "user_id": "u", "kind": "lifetime", "start": "2025-01", "end": "2025-02"}]}`},
		{"custom without credit month", `{"exemptions": [{"club_id": "c", "user_id": "u", "kind": "custom", "start": "2025-01", "end": "2025-02"}]}`},
		{"inverted range", `{"exemptions": [{"club_id": "c", "user_id": "u", "kind": "yearly", "start": "2025-06", "end": "2025-01"}]}`},
		{"bad period", `{"charges": [{"club_id": "c", "user_id": "u", "dues_type": "monthly", "period": "2025-13", "amount": "1", "created_at": "2025-01-01T00:00:00Z"}]}`},
		{"bad created_at", `{"charges": [{"club_id": "c", "user_id": "u", "dues_type": "monthly", "period": "2025-01", "amount": "1", "created_at": "yesterday"}]}`},
		{"unknown dues type", `{"charges": [{"club_id": "c", "user_id": "u", "dues_type": "weekly", "period": "2025-01", "amount": "1", "created_at": "2025-01-01T00:00:00Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewFixtureFactory().Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_GeneratesMissingIDs(t *testing.T) {
	f := factory.NewFixtureFactory()
	n := 0
	f.NewID = func() string { n++; return "gen-" + string(rune('0'+n)) }

	fx, err := f.Parse([]byte(`{
	  "exemptions": [{"club_id": "c", "user_id": "u", "kind": "yearly", "start": "2025-01", "end": "2025-12"}],
	  "charges": [{"club_id": "c", "user_id": "u", "dues_type": "join", "period": "2025-01", "amount": "10", "created_at": "2025-01-01T00:00:00Z"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, dues.GrantID("gen-1"), fx.Exemptions[0].Scope().ID)
	assert.Equal(t, dues.ChargeID("gen-2"), fx.Charges[0].ID)
}

func TestParseBillingPeriod(t *testing.T) {
	p, err := factory.ParseBillingPeriod("2025")
	require.NoError(t, err)
	assert.Equal(t, dues.YearlyPeriod(2025), p)

	p, err = factory.ParseBillingPeriod("2025-03")
	require.NoError(t, err)
	assert.Equal(t, dues.MonthlyPeriod(dues.NewYearMonth(2025, time.March)), p)

	_, err = factory.ParseBillingPeriod("twenty")
	assert.ErrorIs(t, err, dues.ErrInvalidPeriod)
}

func TestLoad_IntoMemoryStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	// GIVEN a parsed fixture
	fx, err := factory.NewFixtureFactory().Parse([]byte(clubFixtureJSON))
	require.NoError(t, err)

	// WHEN it is loaded twice
	require.NoError(t, factory.Load(ctx, mem, fx))
	require.NoError(t, factory.Load(ctx, mem, fx))

	// THEN directory data is readable through the engine contracts
	clubs, err := mem.ListClubs(ctx)
	require.NoError(t, err)
	assert.Len(t, clubs, 2)

	active, err := mem.ListActiveMembers(ctx, "club-a")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, dues.UserID("user-1"), active[0].UserID)

	token, err := mem.PushToken(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// AND charges are not duplicated by the second load
	charges, err := mem.ListCharges(ctx, dues.ChargeFilter{})
	require.NoError(t, err)
	assert.Len(t, charges, 2)
}

func TestParseFile_DemoSeed(t *testing.T) {
	fx, err := factory.NewFixtureFactory().ParseFile(filepath.Join("..", "seed", "demo.yaml"))
	require.NoError(t, err)

	assert.Len(t, fx.Clubs, 3)
	assert.Len(t, fx.Memberships, 6)
	assert.Len(t, fx.PushTokens, 3)
	assert.Len(t, fx.Exemptions, 2)
	require.Len(t, fx.Charges, 2)
	assert.Equal(t, dues.StatusPaid, fx.Charges[0].Status)
	assert.Equal(t, dues.StatusUnpaid, fx.Charges[1].Status)

	for _, cfg := range fx.FeeConfigs {
		if cfg.ClubID == "club-swim" {
			assert.Equal(t, "EUR", cfg.Currency)
			assert.Equal(t, 31, cfg.DueDay)
		}
	}
}
