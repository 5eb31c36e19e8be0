/*
scenarios.go - Demo scenario fixtures for testing and demonstrations

PURPOSE:
  Provides pre-built fixtures that populate the store with clubs,
  members, exemptions and existing charges. Each scenario is paired with
  a suggested as_of date so the manual trigger endpoints show the
  interesting behavior right away.

AVAILABLE SCENARIOS:
  monthly-basics:   One club, due day 25, three members, one inactive
  exemptions:       Yearly, quarterly and custom-credit grants side by side
  short-month:      Due day 31 clamped to the end of short months
  overdue-reminder: Existing unpaid charges near and past their due dates

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Parse the fixture JSON via factory.FixtureFactory
 3. Load it through factory.Load

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "exemptions"}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with its DTO and fixture JSON

NOTE:
  Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/fixture.go: Fixture schema
*/
package api

import (
	"context"
	"fmt"

	"github.com/warp/club-dues/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	fixture string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "monthly-basics",
			Name:        "Monthly Basics",
			Description: "Club with a 30 USD fee due on the 25th. Generation on 2025-03-15 bills March for the two active members.",
			SuggestedAt: "2025-03-15",
		},
		fixture: monthlyBasicsFixture,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "exemptions",
			Name:        "Exemptions & Credit",
			Description: "Yearly and quarterly exempt members are skipped; a 5 USD custom credit bills 25 for 2025-03.",
			SuggestedAt: "2025-03-15",
		},
		fixture: exemptionsFixture,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "short-month",
			Name:        "Short Month",
			Description: "Due day 31: February 2025 is due on the 28th, so generation triggers on 2025-02-18.",
			SuggestedAt: "2025-02-18",
		},
		fixture: shortMonthFixture,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overdue-reminder",
			Name:        "Overdue & Reminders",
			Description: "Unpaid March charges due 2025-03-25. Reminders fire 03-22..03-24; the overdue sweep flips them on 03-26.",
			SuggestedAt: "2025-03-22",
		},
		fixture: overdueReminderFixture,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// loadScenario resets the store and loads the scenario fixture.
func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	fx, err := h.Fixtures.Parse([]byte(s.fixture))
	if err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID, err)
	}
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := factory.Load(ctx, h.Store, fx); err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID, err)
	}
	return nil
}

// =============================================================================
// FIXTURES
// =============================================================================

const monthlyBasicsFixture = `{
  "clubs": [
    {
      "id": "club-runners",
      "name": "Riverside Runners",
      "monthly_fee": "30",
      "due_day": 25,
      "currency": "USD",
      "members": [
        {"user_id": "alice", "push_token": "tok-alice"},
        {"user_id": "bob", "push_token": "tok-bob"},
        {"user_id": "carol", "status": "inactive", "push_token": "tok-carol"}
      ]
    },
    {
      "id": "club-book",
      "name": "Free Book Club",
      "members": [{"user_id": "alice"}]
    }
  ]
}`

const exemptionsFixture = `{
  "clubs": [
    {
      "id": "club-climb",
      "name": "Boulder Crew",
      "monthly_fee": "25",
      "due_day": 25,
      "currency": "USD",
      "members": [
        {"user_id": "dana", "push_token": "tok-dana"},
        {"user_id": "eli", "push_token": "tok-eli"},
        {"user_id": "finn", "push_token": "tok-finn"},
        {"user_id": "gia"}
      ]
    }
  ],
  "exemptions": [
    {"id": "grant-dana-2025", "club_id": "club-climb", "user_id": "dana",
     "kind": "yearly", "start": "2025-01", "end": "2025-12"},
    {"id": "grant-eli-q1", "club_id": "club-climb", "user_id": "eli",
     "kind": "quarterly", "start": "2025-01", "end": "2025-03"},
    {"id": "grant-finn-credit", "club_id": "club-climb", "user_id": "finn",
     "kind": "custom", "start": "2025-01", "end": "2025-12",
     "credit_apply": "2025-03", "credit": "5"}
  ]
}`

const shortMonthFixture = `{
  "clubs": [
    {
      "id": "club-swim",
      "name": "Month-End Swimmers",
      "monthly_fee": "40",
      "due_day": 31,
      "currency": "EUR",
      "members": [
        {"user_id": "hana", "push_token": "tok-hana"},
        {"user_id": "ivan"}
      ]
    }
  ]
}`

const overdueReminderFixture = `{
  "clubs": [
    {
      "id": "club-runners",
      "name": "Riverside Runners",
      "monthly_fee": "30",
      "due_day": 25,
      "currency": "USD",
      "members": [
        {"user_id": "alice", "push_token": "tok-alice"},
        {"user_id": "bob"},
        {"user_id": "jun", "push_token": "tok-jun"}
      ]
    }
  ],
  "charges": [
    {"id": "ch-alice-2025-03", "club_id": "club-runners", "user_id": "alice",
     "dues_type": "monthly", "period": "2025-03", "amount": "30",
     "created_at": "2025-03-15T05:00:00Z"},
    {"id": "ch-bob-2025-03", "club_id": "club-runners", "user_id": "bob",
     "dues_type": "monthly", "period": "2025-03", "amount": "30",
     "created_at": "2025-03-15T05:00:00Z"},
    {"id": "ch-jun-2025-03", "club_id": "club-runners", "user_id": "jun",
     "dues_type": "monthly", "period": "2025-03", "amount": "30", "status": "paid",
     "created_at": "2025-03-15T05:00:00Z"},
    {"id": "ch-jun-join", "club_id": "club-runners", "user_id": "jun",
     "dues_type": "join", "period": "2025-02", "amount": "10",
     "created_at": "2025-02-20T09:00:00Z"},
    {"id": "ch-alice-2025", "club_id": "club-runners", "user_id": "alice",
     "dues_type": "yearly", "period": "2025", "amount": "300",
     "created_at": "2024-12-01T00:00:00Z"},
    {"id": "ch-bob-late", "club_id": "club-runners", "user_id": "bob",
     "dues_type": "late_fee", "period": "2025-02", "amount": "5",
     "created_at": "2025-02-26T00:30:00Z"}
  ]
}`
