/*
reminder.go - Daily due-soon reminder sweep

PURPOSE:
  Finds unpaid monthly and yearly charges whose effective due date is 1 to
  3 days away and sends the member a push reminder plus an in-app
  notification.

DELIVERY CONTRACT:
  There is no send-log guard for this reminder. A charge in the window is
  attempted on each of D-3, D-2 and D-1. ReminderCount records how many
  attempts reached the push sender.

FLOW PER CHARGE:
  1. daysRemaining outside (0, 3]       -> ignored
  2. No push token                       -> NoToken
  3. Compose localized title and body
  4. PushSender.Send                     -> Sent or Failed
  5. SaveNotification, IncrementReminderCount

SEE ALSO:
  - transition.go: EffectiveDueDate
  - notify/catalog.go: MessageComposer implementation
*/
package dues

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReminderWindowDays is the size of the due-soon window.
const ReminderWindowDays = 3

// InReminderWindow reports whether daysRemaining falls in the due-soon window.
func InReminderWindow(daysRemaining int) bool {
	return daysRemaining > 0 && daysRemaining <= ReminderWindowDays
}

// ReminderContent is everything a composer needs to render a reminder.
type ReminderContent struct {
	ClubName      string
	DuesType      DuesType
	Period        BillingPeriod
	Amount        Money
	Currency      string
	DaysRemaining int
}

// MessageComposer renders the localized push title and body.
type MessageComposer interface {
	Compose(content ReminderContent) (title, body string)
}

// ReminderResult aggregates a reminder sweep.
type ReminderResult struct {
	Scanned  int `json:"scanned"`
	InWindow int `json:"in_window"`
	Sent     int `json:"sent"`
	NoToken  int `json:"no_token"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
}

// ReminderDispatcher runs the due-soon sweep.
type ReminderDispatcher struct {
	Charges       ChargeStore
	Configs       FeeConfigReader
	Clubs         ClubDirectory
	Tokens        TokenProvider
	Sender        PushSender
	Notifications NotificationStore
	Messages      MessageComposer
	Logger        zerolog.Logger

	// NewID generates notification IDs. Defaults to random UUIDs.
	NewID func() NotificationID
}

func NewReminderDispatcher(charges ChargeStore, configs FeeConfigReader, clubs ClubDirectory,
	tokens TokenProvider, sender PushSender, notifications NotificationStore,
	messages MessageComposer, logger zerolog.Logger) *ReminderDispatcher {
	return &ReminderDispatcher{
		Charges:       charges,
		Configs:       configs,
		Clubs:         clubs,
		Tokens:        tokens,
		Sender:        sender,
		Notifications: notifications,
		Messages:      messages,
		Logger:        logger.With().Str("job", "reminders").Logger(),
	}
}

// Dispatch sends reminders for every charge in the due-soon window as of now.
// filter.DuesTypes is ignored; only monthly and yearly charges are reminded.
func (d *ReminderDispatcher) Dispatch(ctx context.Context, now time.Time, filter ChargeFilter) (ReminderResult, error) {
	filter.DuesTypes = []DuesType{DuesMonthly, DuesYearly}
	charges, err := d.Charges.ListChargesByStatus(ctx, StatusUnpaid, filter)
	if err != nil {
		return ReminderResult{}, fmt.Errorf("list unpaid charges: %w", err)
	}

	today := DateOf(now)
	cache := make(dueDays)
	clubNames := make(map[ClubID]string)

	var result ReminderResult
	for _, c := range charges {
		result.Scanned++
		log := d.Logger.With().
			Str("charge_id", string(c.ID)).
			Str("club_id", string(c.ClubID)).
			Str("user_id", string(c.UserID)).
			Logger()

		dueDay, err := lookupDueDay(ctx, d.Configs, cache, c.ClubID)
		if err != nil {
			log.Error().Err(err).Msg("due day lookup")
			result.Errors++
			continue
		}
		due, err := EffectiveDueDate(c, dueDay, now.Location())
		if err != nil {
			log.Error().Err(err).Msg("effective due date")
			result.Errors++
			continue
		}

		remaining := DaysBetween(today, due)
		if !InReminderWindow(remaining) {
			continue
		}
		result.InWindow++

		outcome, err := d.remind(ctx, c, remaining, now, clubNames)
		if err != nil {
			log.Error().Err(err).Msg("send reminder")
			result.Errors++
			continue
		}
		switch outcome {
		case reminderSent:
			result.Sent++
		case reminderNoToken:
			log.Debug().Msg("no push token")
			result.NoToken++
		case reminderFailed:
			log.Warn().Msg("push delivery failed")
			result.Failed++
		}
	}

	d.Logger.Info().
		Int("scanned", result.Scanned).
		Int("in_window", result.InWindow).
		Int("sent", result.Sent).
		Int("no_token", result.NoToken).
		Int("failed", result.Failed).
		Int("errors", result.Errors).
		Msg("reminder sweep complete")

	return result, nil
}

type reminderOutcome int

const (
	reminderSent reminderOutcome = iota
	reminderNoToken
	reminderFailed
)

func (d *ReminderDispatcher) remind(ctx context.Context, c Charge, remaining int, now time.Time,
	clubNames map[ClubID]string) (reminderOutcome, error) {

	token, err := d.Tokens.PushToken(ctx, c.UserID)
	if err != nil {
		return 0, fmt.Errorf("push token: %w", err)
	}
	if token == "" {
		return reminderNoToken, nil
	}

	clubName, err := d.clubName(ctx, c.ClubID, clubNames)
	if err != nil {
		return 0, err
	}

	title, body := d.Messages.Compose(ReminderContent{
		ClubName:      clubName,
		DuesType:      c.DuesType,
		Period:        c.Period,
		Amount:        c.Amount,
		Currency:      c.Currency,
		DaysRemaining: remaining,
	})
	data := map[string]string{
		"type":           NotificationDuesReminder,
		"club_id":        string(c.ClubID),
		"charge_id":      string(c.ID),
		"period":         c.Period.String(),
		"days_remaining": strconv.Itoa(remaining),
	}

	sent, err := d.Sender.Send(ctx, PushMessage{Token: token, Title: title, Body: body, Data: data})
	if err != nil {
		d.Logger.Warn().Err(err).Str("charge_id", string(c.ID)).Msg("push sender")
		return reminderFailed, nil
	}

	if err := d.Notifications.SaveNotification(ctx, Notification{
		ID:        d.newID(),
		UserID:    c.UserID,
		ClubID:    c.ClubID,
		ChargeID:  c.ID,
		Kind:      NotificationDuesReminder,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: now,
	}); err != nil {
		return 0, fmt.Errorf("save notification: %w", err)
	}
	if err := d.Charges.IncrementReminderCount(ctx, c.ID, now); err != nil {
		return 0, fmt.Errorf("increment reminder count: %w", err)
	}

	if sent.SuccessCount == 0 {
		return reminderFailed, nil
	}
	return reminderSent, nil
}

func (d *ReminderDispatcher) clubName(ctx context.Context, id ClubID, names map[ClubID]string) (string, error) {
	if name, ok := names[id]; ok {
		return name, nil
	}
	club, err := d.Clubs.GetClub(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get club %s: %w", id, err)
	}
	names[id] = club.Name
	return club.Name, nil
}

func (d *ReminderDispatcher) newID() NotificationID {
	if d.NewID != nil {
		return d.NewID()
	}
	return NotificationID(uuid.NewString())
}
