/*
Package dues provides the club membership fee lifecycle engine.

PURPOSE:
  Decides which active members of a club owe a charge for an upcoming
  billing period, resolves exemptions and credits, creates exactly one
  charge per member per period, ages unpaid charges into overdue, and
  dispatches due-soon reminders.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal amount paired with a currency code on the charge
  - FeeConfig: per-club monthly fee, due day and currency (read-only here)
  - Membership: who is billed (only active members)
  - Charge: one billing obligation for one member, dues type and period
  - ChargeKey: the composite idempotency key for a charge

CHARGE LIFECYCLE:
  unpaid  --(StatusTransitioner)-->  overdue
  unpaid/overdue --(external payment)--> paid

  A charge, once created for a period, is never regenerated or deleted
  by this package.

SEE ALSO:
  - period.go: YearMonth and calendar helpers
  - schedule.go: Generation trigger arithmetic
  - exemption.go: Exemption and credit resolution
  - generator.go, transition.go, reminder.go: The three daily sweeps
*/
package dues

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a fee amount. The currency travels on the owning record.
type Money = decimal.Decimal

// NewMoney builds a Money value from a float literal.
func NewMoney(value float64) Money { return decimal.NewFromFloat(value) }

// ParseMoney parses a decimal string such as "30" or "12.50".
func ParseMoney(s string) (Money, error) { return decimal.NewFromString(s) }

// MustParseMoney parses a decimal string, returning zero on malformed input.
func MustParseMoney(s string) Money {
	d, err := ParseMoney(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClubID string
type UserID string
type ChargeID string
type GrantID string
type NotificationID string

// =============================================================================
// FEE CONFIG - Read-only input, mutated externally at any time
// =============================================================================

const (
	DefaultDueDay   = 25
	DefaultCurrency = "USD"
)

// FeeConfig is a club's recurring fee configuration.
type FeeConfig struct {
	ClubID     ClubID
	MonthlyFee Money
	DueDay     int
	Currency   string
}

// WithDefaults fills in the due day and currency when they are unset.
func (c FeeConfig) WithDefaults() FeeConfig {
	if c.DueDay < 1 || c.DueDay > 31 {
		c.DueDay = DefaultDueDay
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	return c
}

// Billable reports whether the club charges a recurring fee at all.
func (c FeeConfig) Billable() bool { return c.MonthlyFee.IsPositive() }

// =============================================================================
// CLUBS & MEMBERSHIP
// =============================================================================

type Club struct {
	ID   ClubID
	Name string
}

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipInactive MembershipStatus = "inactive"
)

type Membership struct {
	ClubID ClubID
	UserID UserID
	Status MembershipStatus
}

// =============================================================================
// CHARGE
// =============================================================================

type DuesType string

const (
	DuesJoin    DuesType = "join"
	DuesMonthly DuesType = "monthly"
	DuesYearly  DuesType = "yearly"
	DuesLateFee DuesType = "late_fee"
)

func (d DuesType) Valid() bool {
	switch d {
	case DuesJoin, DuesMonthly, DuesYearly, DuesLateFee:
		return true
	}
	return false
}

type ChargeStatus string

const (
	StatusUnpaid  ChargeStatus = "unpaid"
	StatusOverdue ChargeStatus = "overdue"
	StatusPaid    ChargeStatus = "paid"
)

// BillingPeriod identifies what a charge covers. Month is zero for
// year-scoped charges (yearly dues).
type BillingPeriod struct {
	Year  int
	Month time.Month
}

func MonthlyPeriod(ym YearMonth) BillingPeriod { return BillingPeriod{Year: ym.Year, Month: ym.Month} }
func YearlyPeriod(year int) BillingPeriod     { return BillingPeriod{Year: year} }

func (p BillingPeriod) HasMonth() bool { return p.Month != 0 }

// YearMonth returns the month this period covers. Only meaningful when HasMonth.
func (p BillingPeriod) YearMonth() YearMonth { return YearMonth{Year: p.Year, Month: p.Month} }

func (p BillingPeriod) String() string {
	if !p.HasMonth() {
		return fmt.Sprintf("%04d", p.Year)
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Charge is a single billing obligation.
type Charge struct {
	ID             ChargeID
	ClubID         ClubID
	UserID         UserID
	DuesType       DuesType
	Period         BillingPeriod
	Amount         Money
	OriginalAmount *Money
	CreditApplied  *Money
	Currency       string
	Status         ChargeStatus
	ReminderCount  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the idempotency key of the charge.
func (c Charge) Key() ChargeKey {
	return ChargeKey{ClubID: c.ClubID, UserID: c.UserID, DuesType: c.DuesType, Period: c.Period}
}

// ChargeKey is the composite idempotency key: at most one charge exists
// per (club, user, dues type, period).
type ChargeKey struct {
	ClubID   ClubID
	UserID   UserID
	DuesType DuesType
	Period   BillingPeriod
}

func (k ChargeKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.ClubID, k.UserID, k.DuesType, k.Period)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const NotificationDuesReminder = "dues_reminder"

// Notification is the in-app record persisted after a reminder push.
type Notification struct {
	ID        NotificationID
	UserID    UserID
	ClubID    ClubID
	ChargeID  ChargeID
	Kind      string
	Title     string
	Body      string
	Data      map[string]string
	CreatedAt time.Time
}
