/*
generator.go - Daily monthly-dues charge generation

PURPOSE:
  Once per day, for every billable club whose generation trigger is today,
  creates one unpaid monthly charge per active member for the target
  period, unless the member is exempt or already charged.

DESIGN:
  - Idempotent: existence check, then a conditional create on ChargeKey.
    Re-running the same day (or retrying a failed run) never double-bills.
  - Partial-failure isolation: a failing club or member is logged and
    counted; the loop continues.
  - Enumeration failure (listing clubs) is returned so the whole run is
    retried by the scheduler.
  - No notification is sent at creation time.

FLOW PER MEMBER:
  1. Charge exists for key?          -> skipped
  2. Exemption resolver says exempt? -> skipped
  3. Credit > 0?  amount = max(0, fee - credit), original/credit recorded
  4. CreateChargeIfAbsent            -> created (or skipped if lost race)

SEE ALSO:
  - schedule.go: ShouldGenerate, TargetPeriod
  - exemption.go: ExemptionResolver
*/
package dues

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RunResult aggregates a generation run.
type RunResult struct {
	ClubsTriggered int `json:"clubs_triggered"`
	Created        int `json:"created"`
	Skipped        int `json:"skipped"`
	Errors         int `json:"errors"`
}

func (r *RunResult) add(other RunResult) {
	r.ClubsTriggered += other.ClubsTriggered
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

// ChargeGenerator creates monthly charges.
type ChargeGenerator struct {
	Clubs      ClubDirectory
	Configs    FeeConfigReader
	Members    MembershipDirectory
	Exemptions *ExemptionResolver
	Charges    ChargeStore
	Logger     zerolog.Logger

	// NewID generates charge IDs. Defaults to random UUIDs.
	NewID func() ChargeID
}

func NewChargeGenerator(clubs ClubDirectory, configs FeeConfigReader, members MembershipDirectory,
	exemptions ExemptionStore, charges ChargeStore, logger zerolog.Logger) *ChargeGenerator {
	return &ChargeGenerator{
		Clubs:      clubs,
		Configs:    configs,
		Members:    members,
		Exemptions: NewExemptionResolver(exemptions),
		Charges:    charges,
		Logger:     logger.With().Str("job", "generate").Logger(),
	}
}

// RunDaily is the scheduled entry point: generate for every club whose
// trigger day is now.
func (g *ChargeGenerator) RunDaily(ctx context.Context, now time.Time) (RunResult, error) {
	return g.RunDailyForClub(ctx, "", now)
}

// RunDailyForClub is RunDaily restricted to one club. An empty clubID
// means every club.
func (g *ChargeGenerator) RunDailyForClub(ctx context.Context, clubID ClubID, now time.Time) (RunResult, error) {
	return g.run(ctx, clubID, now, func(cfg FeeConfig) (YearMonth, bool) {
		if !ShouldGenerate(cfg.DueDay, now) {
			return YearMonth{}, false
		}
		return TargetPeriod(cfg.DueDay, now), true
	})
}

// GenerateForPeriod is the administrative variant: bill an explicit period,
// bypassing the trigger-day check. An empty clubID means every club.
func (g *ChargeGenerator) GenerateForPeriod(ctx context.Context, clubID ClubID, period YearMonth, now time.Time) (RunResult, error) {
	if !period.Valid() {
		return RunResult{}, fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	return g.run(ctx, clubID, now, func(FeeConfig) (YearMonth, bool) {
		return period, true
	})
}

func (g *ChargeGenerator) run(ctx context.Context, only ClubID, now time.Time,
	target func(FeeConfig) (YearMonth, bool)) (RunResult, error) {

	clubs, err := g.clubsFor(ctx, only)
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	for _, club := range clubs {
		log := g.Logger.With().Str("club_id", string(club.ID)).Logger()

		raw, err := g.Configs.GetFeeConfig(ctx, club.ID)
		if err != nil {
			log.Error().Err(err).Msg("read fee config")
			result.Errors++
			continue
		}
		cfg := raw.WithDefaults()
		if !cfg.Billable() {
			continue
		}

		period, ok := target(cfg)
		if !ok {
			continue
		}

		result.ClubsTriggered++
		result.add(g.generateForClub(ctx, club.ID, cfg, period, now))
	}

	g.Logger.Info().
		Int("clubs_triggered", result.ClubsTriggered).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("generation run complete")

	return result, nil
}

func (g *ChargeGenerator) clubsFor(ctx context.Context, only ClubID) ([]Club, error) {
	if only != "" {
		club, err := g.Clubs.GetClub(ctx, only)
		if err != nil {
			return nil, fmt.Errorf("get club %s: %w", only, err)
		}
		return []Club{club}, nil
	}
	clubs, err := g.Clubs.ListClubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clubs: %w", err)
	}
	return clubs, nil
}

func (g *ChargeGenerator) generateForClub(ctx context.Context, clubID ClubID, cfg FeeConfig, period YearMonth, now time.Time) RunResult {
	log := g.Logger.With().Str("club_id", string(clubID)).Str("period", period.String()).Logger()

	members, err := g.Members.ListActiveMembers(ctx, clubID)
	if err != nil {
		log.Error().Err(err).Msg("list active members")
		return RunResult{Errors: 1}
	}

	var result RunResult
	for _, m := range members {
		created, err := g.billMember(ctx, m.UserID, clubID, cfg, period, now)
		switch {
		case err != nil:
			log.Error().Err(err).Str("user_id", string(m.UserID)).Msg("bill member")
			result.Errors++
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}
	return result
}

func (g *ChargeGenerator) billMember(ctx context.Context, userID UserID, clubID ClubID, cfg FeeConfig, period YearMonth, now time.Time) (bool, error) {
	key := ChargeKey{ClubID: clubID, UserID: userID, DuesType: DuesMonthly, Period: MonthlyPeriod(period)}

	exists, err := g.Charges.ChargeExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check charge %s: %w", key, err)
	}
	if exists {
		g.Logger.Debug().Str("key", key.String()).Msg("charge exists")
		return false, nil
	}

	res, err := g.Exemptions.Resolve(ctx, clubID, userID, period)
	if err != nil {
		return false, err
	}
	if res.Exempt {
		g.Logger.Debug().Str("key", key.String()).Str("grant_id", string(res.GrantID)).Msg("member exempt")
		return false, nil
	}

	charge := Charge{
		ID:        g.newID(),
		ClubID:    clubID,
		UserID:    userID,
		DuesType:  DuesMonthly,
		Period:    key.Period,
		Amount:    cfg.MonthlyFee,
		Currency:  cfg.Currency,
		Status:    StatusUnpaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if res.Credit.IsPositive() {
		original := cfg.MonthlyFee
		credit := res.Credit
		charge.Amount = decimal.Max(decimal.Zero, cfg.MonthlyFee.Sub(credit))
		charge.OriginalAmount = &original
		charge.CreditApplied = &credit
	}

	created, err := g.Charges.CreateChargeIfAbsent(ctx, charge)
	if err != nil {
		return false, &ChargeWriteError{Key: key, Err: err}
	}
	return created, nil
}

func (g *ChargeGenerator) newID() ChargeID {
	if g.NewID != nil {
		return g.NewID()
	}
	return ChargeID(uuid.NewString())
}
