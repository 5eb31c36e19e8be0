/*
transition.go - Daily unpaid -> overdue sweep

PURPOSE:
  Ages every unpaid charge whose effective due date has passed into the
  overdue state. The transition is one-way; nothing in this package
  reverses it. No notification is sent on transition.

EFFECTIVE DUE DATE:
  Recomputed at evaluation time from the club's current fee config, not
  from a value stored on the charge:
    monthly:  DateIn(period, dueDay)
    yearly:   DateIn(December of period.Year-1, dueDay)
    join:     DateOf(createdAt) + 30 days
    late_fee: none (never transitioned)

  Changing a club's due day therefore moves the deadline of every
  outstanding unpaid charge of that club.

SEE ALSO:
  - reminder.go: Uses the same due-date rules
*/
package dues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// JoinDuePeriodDays is how long a join charge stays unpaid before overdue.
const JoinDuePeriodDays = 30

// EffectiveDueDate computes a charge's deadline under the given due day.
// A join charge counts from its creation date as seen on the wall clock in
// loc, which is the zone the sweeps take "today" from. Stores may hand
// CreatedAt back in any zone.
func EffectiveDueDate(c Charge, dueDay int, loc *time.Location) (time.Time, error) {
	switch c.DuesType {
	case DuesMonthly:
		if !c.Period.HasMonth() {
			return time.Time{}, fmt.Errorf("%w: monthly charge %s without month", ErrInvalidPeriod, c.ID)
		}
		return MonthlyDueDate(dueDay, c.Period.YearMonth()), nil
	case DuesYearly:
		return DateIn(YearMonth{Year: c.Period.Year - 1, Month: time.December}, dueDay), nil
	case DuesJoin:
		if loc == nil {
			loc = time.UTC
		}
		return DateOf(c.CreatedAt.In(loc)).AddDate(0, 0, JoinDuePeriodDays), nil
	default:
		return time.Time{}, ErrNoDueDate
	}
}

// dueDays memoizes due-day lookups for the duration of one sweep. It is
// created per run and passed explicitly.
type dueDays map[ClubID]int

func lookupDueDay(ctx context.Context, configs FeeConfigReader, cache dueDays, clubID ClubID) (int, error) {
	if day, ok := cache[clubID]; ok {
		return day, nil
	}
	cfg, err := configs.GetFeeConfig(ctx, clubID)
	if err != nil {
		return 0, fmt.Errorf("read fee config for %s: %w", clubID, err)
	}
	day := cfg.WithDefaults().DueDay
	cache[clubID] = day
	return day, nil
}

// SweepResult aggregates an overdue sweep.
type SweepResult struct {
	Scanned      int `json:"scanned"`
	Transitioned int `json:"transitioned"`
	Errors       int `json:"errors"`
}

// StatusTransitioner runs the overdue sweep.
type StatusTransitioner struct {
	Charges ChargeStore
	Configs FeeConfigReader
	Logger  zerolog.Logger
}

func NewStatusTransitioner(charges ChargeStore, configs FeeConfigReader, logger zerolog.Logger) *StatusTransitioner {
	return &StatusTransitioner{
		Charges: charges,
		Configs: configs,
		Logger:  logger.With().Str("job", "overdue").Logger(),
	}
}

// Sweep transitions unpaid charges past their due date as of now.
func (t *StatusTransitioner) Sweep(ctx context.Context, now time.Time, filter ChargeFilter) (SweepResult, error) {
	charges, err := t.Charges.ListChargesByStatus(ctx, StatusUnpaid, filter)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list unpaid charges: %w", err)
	}

	today := DateOf(now)
	cache := make(dueDays)

	var result SweepResult
	for _, c := range charges {
		result.Scanned++
		log := t.Logger.With().Str("charge_id", string(c.ID)).Str("club_id", string(c.ClubID)).Logger()

		dueDay, err := lookupDueDay(ctx, t.Configs, cache, c.ClubID)
		if err != nil {
			log.Error().Err(err).Msg("due day lookup")
			result.Errors++
			continue
		}

		due, err := EffectiveDueDate(c, dueDay, now.Location())
		if err != nil {
			if !errors.Is(err, ErrNoDueDate) {
				log.Error().Err(err).Msg("effective due date")
				result.Errors++
			}
			continue
		}
		if !today.After(due) {
			continue
		}

		changed, err := t.Charges.MarkOverdue(ctx, c.ID, now)
		if err != nil {
			log.Error().Err(err).Msg("mark overdue")
			result.Errors++
			continue
		}
		if changed {
			result.Transitioned++
			log.Debug().Time("due", due).Msg("charge overdue")
		}
	}

	t.Logger.Info().
		Int("scanned", result.Scanned).
		Int("transitioned", result.Transitioned).
		Int("errors", result.Errors).
		Msg("overdue sweep complete")

	return result, nil
}
