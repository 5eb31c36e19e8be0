/*
Package factory provides JSON and YAML to Go fixture conversion.

PURPOSE:
  Converts club fixture documents into dues engine types and writes them
  through any store that implements FixtureSink. Fixtures seed demo
  scenarios, the server's -seed flag, the duesctl seed command and tests.

JSON SCHEMA:
  {
    "clubs": [
      {
        "id": "club-a",
        "name": "Riverside Runners",
        "monthly_fee": "30",
        "due_day": 25,
        "currency": "USD",
        "members": [
          {"user_id": "user-1", "push_token": "tok-1"},
          {"user_id": "user-2", "status": "inactive"}
        ]
      }
    ],
    "exemptions": [
      {"id": "g-1", "club_id": "club-a", "user_id": "user-1",
       "kind": "custom", "start": "2025-01", "end": "2025-12",
       "credit_apply": "2025-03", "credit": "5"}
    ],
    "charges": [
      {"club_id": "club-a", "user_id": "user-1", "dues_type": "monthly",
       "period": "2025-02", "amount": "30", "status": "paid",
       "created_at": "2025-01-15T05:00:00Z"}
    ]
  }

  The YAML form uses the same keys.

KEY FEATURES:
  - Validates structure with go-playground/validator
  - Sets sensible defaults (active status, USD, due day 25, unpaid)
  - Builds the right ExemptionGrant variant per kind
  - Period "2025" is yearly, "2025-03" is monthly

USAGE:
  f := factory.NewFixtureFactory()
  fx, err := f.ParseFile("seed/demo.yaml")
  err = factory.Load(ctx, store, fx)

SEE ALSO:
  - dues/types.go: Engine types
  - api/scenarios.go: Built-in fixtures
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/club-dues/dues"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFixture is returned when a fixture document fails validation.
var ErrInvalidFixture = errors.New("invalid fixture")

// =============================================================================
// DOCUMENT SCHEMA TYPES
// =============================================================================

// FixtureJSON is the document form of a fixture.
type FixtureJSON struct {
	Clubs      []ClubJSON      `json:"clubs" yaml:"clubs" validate:"dive"`
	Exemptions []ExemptionJSON `json:"exemptions,omitempty" yaml:"exemptions,omitempty" validate:"dive"`
	Charges    []ChargeJSON    `json:"charges,omitempty" yaml:"charges,omitempty" validate:"dive"`
}

// ClubJSON is a club with its fee configuration and members.
type ClubJSON struct {
	ID         string       `json:"id" yaml:"id" validate:"required"`
	Name       string       `json:"name" yaml:"name" validate:"required"`
	MonthlyFee string       `json:"monthly_fee,omitempty" yaml:"monthly_fee,omitempty" validate:"omitempty,numeric"`
	DueDay     int          `json:"due_day,omitempty" yaml:"due_day,omitempty" validate:"omitempty,min=1,max=31"`
	Currency   string       `json:"currency,omitempty" yaml:"currency,omitempty" validate:"omitempty,len=3"`
	Members    []MemberJSON `json:"members,omitempty" yaml:"members,omitempty" validate:"dive"`
}

// MemberJSON is one membership. Status defaults to active.
type MemberJSON struct {
	UserID    string `json:"user_id" yaml:"user_id" validate:"required"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	PushToken string `json:"push_token,omitempty" yaml:"push_token,omitempty"`
}

// ExemptionJSON is one exemption grant. Months are "YYYY-MM".
type ExemptionJSON struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	ClubID      string `json:"club_id" yaml:"club_id" validate:"required"`
	UserID      string `json:"user_id" yaml:"user_id" validate:"required"`
	Kind        string `json:"kind" yaml:"kind" validate:"required,oneof=yearly quarterly custom"`
	Start       string `json:"start" yaml:"start" validate:"required"`
	End         string `json:"end" yaml:"end" validate:"required"`
	CreditApply string `json:"credit_apply,omitempty" yaml:"credit_apply,omitempty" validate:"required_if=Kind custom"`
	Credit      string `json:"credit,omitempty" yaml:"credit,omitempty" validate:"omitempty,numeric"`
}

// ChargeJSON is a pre-existing charge.
type ChargeJSON struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	ClubID        string `json:"club_id" yaml:"club_id" validate:"required"`
	UserID        string `json:"user_id" yaml:"user_id" validate:"required"`
	DuesType      string `json:"dues_type" yaml:"dues_type" validate:"required,oneof=join monthly yearly late_fee"`
	Period        string `json:"period" yaml:"period" validate:"required"`
	Amount        string `json:"amount" yaml:"amount" validate:"required,numeric"`
	Currency      string `json:"currency,omitempty" yaml:"currency,omitempty" validate:"omitempty,len=3"`
	Status        string `json:"status,omitempty" yaml:"status,omitempty" validate:"omitempty,oneof=unpaid overdue paid"`
	ReminderCount int    `json:"reminder_count,omitempty" yaml:"reminder_count,omitempty" validate:"min=0"`
	CreatedAt     string `json:"created_at" yaml:"created_at" validate:"required"`
}

// =============================================================================
// ENGINE-SIDE FIXTURE
// =============================================================================

// PushToken binds a user to a device token.
type PushToken struct {
	UserID dues.UserID
	Token  string
}

// Fixture is a parsed document, ready to load.
type Fixture struct {
	Clubs       []dues.Club
	FeeConfigs  []dues.FeeConfig
	Memberships []dues.Membership
	PushTokens  []PushToken
	Exemptions  []dues.ExemptionGrant
	Charges     []dues.Charge
}

// FixtureSink is the write side a fixture loads into.
type FixtureSink interface {
	SaveClub(ctx context.Context, club dues.Club) error
	SaveFeeConfig(ctx context.Context, cfg dues.FeeConfig) error
	SaveMembership(ctx context.Context, m dues.Membership) error
	SaveExemption(ctx context.Context, grant dues.ExemptionGrant) error
	SavePushToken(ctx context.Context, userID dues.UserID, token string) error
	CreateChargeIfAbsent(ctx context.Context, charge dues.Charge) (bool, error)
}

// =============================================================================
// FIXTURE FACTORY
// =============================================================================

// Format selects the document decoder.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FixtureFactory converts fixture documents to engine types.
type FixtureFactory struct {
	validate *validator.Validate

	// NewID generates IDs for charges and grants that omit one.
	NewID func() string
}

// NewFixtureFactory creates a new fixture factory.
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{validate: validator.New(), NewID: uuid.NewString}
}

// Parse parses a JSON document.
func (f *FixtureFactory) Parse(data []byte) (*Fixture, error) {
	return f.ParseFormat(data, FormatJSON)
}

// ParseFormat parses a document in the given format.
func (f *FixtureFactory) ParseFormat(data []byte, format Format) (*Fixture, error) {
	var doc FixtureJSON
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse fixture JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse fixture YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidFixture, format)
	}
	return f.FromJSON(doc)
}

// ParseFile reads a fixture file. ".yaml" and ".yml" decode as YAML,
// everything else as JSON.
func (f *FixtureFactory) ParseFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return f.ParseFormat(data, FormatForPath(path))
}

// FormatForPath picks the decoder from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FromJSON converts a decoded document to a Fixture.
func (f *FixtureFactory) FromJSON(doc FixtureJSON) (*Fixture, error) {
	if err := f.validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}

	fx := &Fixture{}
	for _, cj := range doc.Clubs {
		club, cfg, err := parseClub(cj)
		if err != nil {
			return nil, err
		}
		fx.Clubs = append(fx.Clubs, club)
		fx.FeeConfigs = append(fx.FeeConfigs, cfg)

		for _, mj := range cj.Members {
			status := dues.MembershipActive
			if mj.Status != "" {
				status = dues.MembershipStatus(mj.Status)
			}
			fx.Memberships = append(fx.Memberships, dues.Membership{
				ClubID: club.ID,
				UserID: dues.UserID(mj.UserID),
				Status: status,
			})
			if mj.PushToken != "" {
				fx.PushTokens = append(fx.PushTokens, PushToken{UserID: dues.UserID(mj.UserID), Token: mj.PushToken})
			}
		}
	}

	for _, ej := range doc.Exemptions {
		grant, err := f.parseExemption(ej)
		if err != nil {
			return nil, err
		}
		fx.Exemptions = append(fx.Exemptions, grant)
	}

	currencies := make(map[dues.ClubID]string, len(fx.FeeConfigs))
	for _, cfg := range fx.FeeConfigs {
		currencies[cfg.ClubID] = cfg.Currency
	}
	for _, chj := range doc.Charges {
		charge, err := f.parseCharge(chj, currencies)
		if err != nil {
			return nil, err
		}
		fx.Charges = append(fx.Charges, charge)
	}

	return fx, nil
}

func parseClub(cj ClubJSON) (dues.Club, dues.FeeConfig, error) {
	club := dues.Club{ID: dues.ClubID(cj.ID), Name: cj.Name}
	cfg := dues.FeeConfig{ClubID: club.ID, DueDay: cj.DueDay, Currency: strings.ToUpper(cj.Currency)}
	if cj.MonthlyFee != "" {
		fee, err := parseAmount(cj.MonthlyFee)
		if err != nil {
			return club, cfg, fmt.Errorf("club %s: %w", cj.ID, err)
		}
		cfg.MonthlyFee = fee
	}
	return club, cfg.WithDefaults(), nil
}

func (f *FixtureFactory) parseExemption(ej ExemptionJSON) (dues.ExemptionGrant, error) {
	start, err := dues.ParseYearMonth(ej.Start)
	if err != nil {
		return nil, fmt.Errorf("exemption %s start: %w", ej.ID, err)
	}
	end, err := dues.ParseYearMonth(ej.End)
	if err != nil {
		return nil, fmt.Errorf("exemption %s end: %w", ej.ID, err)
	}

	var creditApply dues.YearMonth
	credit := dues.NewMoney(0)
	if ej.Kind == string(dues.ExemptionCustom) {
		if creditApply, err = dues.ParseYearMonth(ej.CreditApply); err != nil {
			return nil, fmt.Errorf("exemption %s credit_apply: %w", ej.ID, err)
		}
		if ej.Credit != "" {
			if credit, err = parseAmount(ej.Credit); err != nil {
				return nil, fmt.Errorf("exemption %s: %w", ej.ID, err)
			}
		}
	}

	id := ej.ID
	if id == "" {
		id = f.NewID()
	}
	scope := dues.GrantScope{
		ID:     dues.GrantID(id),
		ClubID: dues.ClubID(ej.ClubID),
		UserID: dues.UserID(ej.UserID),
		Range:  dues.YearMonthRange{Start: start, End: end},
	}
	return dues.NewExemptionGrant(dues.ExemptionKind(ej.Kind), scope, creditApply, credit)
}

func (f *FixtureFactory) parseCharge(chj ChargeJSON, currencies map[dues.ClubID]string) (dues.Charge, error) {
	period, err := ParseBillingPeriod(chj.Period)
	if err != nil {
		return dues.Charge{}, fmt.Errorf("charge %s/%s: %w", chj.ClubID, chj.UserID, err)
	}
	amount, err := parseAmount(chj.Amount)
	if err != nil {
		return dues.Charge{}, fmt.Errorf("charge %s/%s: %w", chj.ClubID, chj.UserID, err)
	}
	createdAt, err := time.Parse(time.RFC3339, chj.CreatedAt)
	if err != nil {
		return dues.Charge{}, fmt.Errorf("%w: charge %s/%s created_at %q", ErrInvalidFixture, chj.ClubID, chj.UserID, chj.CreatedAt)
	}

	clubID := dues.ClubID(chj.ClubID)
	currency := strings.ToUpper(chj.Currency)
	if currency == "" {
		currency = currencies[clubID]
	}
	if currency == "" {
		currency = dues.DefaultCurrency
	}
	status := dues.StatusUnpaid
	if chj.Status != "" {
		status = dues.ChargeStatus(chj.Status)
	}
	id := chj.ID
	if id == "" {
		id = f.NewID()
	}

	return dues.Charge{
		ID:            dues.ChargeID(id),
		ClubID:        clubID,
		UserID:        dues.UserID(chj.UserID),
		DuesType:      dues.DuesType(chj.DuesType),
		Period:        period,
		Amount:        amount,
		Currency:      currency,
		Status:        status,
		ReminderCount: chj.ReminderCount,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}, nil
}

// ParseBillingPeriod parses "2025" as a yearly period and "2025-03" as
// a monthly one.
func ParseBillingPeriod(s string) (dues.BillingPeriod, error) {
	if !strings.Contains(s, "-") {
		year, err := strconv.Atoi(s)
		if err != nil || year < 1 {
			return dues.BillingPeriod{}, fmt.Errorf("%w: %q", dues.ErrInvalidPeriod, s)
		}
		return dues.YearlyPeriod(year), nil
	}
	ym, err := dues.ParseYearMonth(s)
	if err != nil {
		return dues.BillingPeriod{}, err
	}
	return dues.MonthlyPeriod(ym), nil
}

func parseAmount(s string) (dues.Money, error) {
	m, err := dues.ParseMoney(s)
	if err != nil {
		return m, fmt.Errorf("%w: amount %q", ErrInvalidFixture, s)
	}
	if m.IsNegative() {
		return m, fmt.Errorf("%w: negative amount %q", ErrInvalidFixture, s)
	}
	return m, nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load writes a fixture through sink. Clubs, configs and members go first
// so charges and grants always refer to known clubs. Existing charges with
// the same key are left alone.
func Load(ctx context.Context, sink FixtureSink, fx *Fixture) error {
	for _, club := range fx.Clubs {
		if err := sink.SaveClub(ctx, club); err != nil {
			return fmt.Errorf("save club %s: %w", club.ID, err)
		}
	}
	for _, cfg := range fx.FeeConfigs {
		if err := sink.SaveFeeConfig(ctx, cfg); err != nil {
			return fmt.Errorf("save fee config %s: %w", cfg.ClubID, err)
		}
	}
	for _, m := range fx.Memberships {
		if err := sink.SaveMembership(ctx, m); err != nil {
			return fmt.Errorf("save membership %s/%s: %w", m.ClubID, m.UserID, err)
		}
	}
	for _, pt := range fx.PushTokens {
		if err := sink.SavePushToken(ctx, pt.UserID, pt.Token); err != nil {
			return fmt.Errorf("save push token %s: %w", pt.UserID, err)
		}
	}
	for _, g := range fx.Exemptions {
		if err := sink.SaveExemption(ctx, g); err != nil {
			return fmt.Errorf("save exemption %s: %w", g.Scope().ID, err)
		}
	}
	for _, c := range fx.Charges {
		if _, err := sink.CreateChargeIfAbsent(ctx, c); err != nil {
			return fmt.Errorf("save charge %s: %w", c.Key(), err)
		}
	}
	return nil
}
