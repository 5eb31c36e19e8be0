/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the dues engine types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Clubs:         ClubDTO
  Charges:       ChargeDTO
  Notifications: NotificationDTO
  Admin runs:    RunRequest, GenerateResponse, OverdueResponse, RemindersResponse
  Scenarios:     ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  Handler.decode which decodes and validates in one step.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/club-dues/dues"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RunRequest is the body of every manual trigger. All fields are optional.
// Year and month select an explicit generation period and only apply to
// generate. AsOf ("2006-01-02") replaces today.
type RunRequest struct {
	ClubID string `json:"club_id,omitempty"`
	Year   int    `json:"year,omitempty" validate:"required_with=Month,min=0"`
	Month  int    `json:"month,omitempty" validate:"required_with=Year,min=0,max=12"`
	AsOf   string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// LoadScenarioRequest selects a built-in scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ClubDTO is a club with its fee configuration.
type ClubDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MonthlyFee string `json:"monthly_fee"`
	DueDay     int    `json:"due_day"`
	Currency   string `json:"currency"`
}

// ChargeDTO represents a charge in API responses.
type ChargeDTO struct {
	ID             string  `json:"id"`
	ClubID         string  `json:"club_id"`
	UserID         string  `json:"user_id"`
	DuesType       string  `json:"dues_type"`
	Period         string  `json:"period"`
	Amount         string  `json:"amount"`
	OriginalAmount *string `json:"original_amount,omitempty"`
	CreditApplied  *string `json:"credit_applied,omitempty"`
	Currency       string  `json:"currency"`
	Status         string  `json:"status"`
	ReminderCount  int     `json:"reminder_count"`
	DueDate        *string `json:"due_date,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// NotificationDTO represents an in-app notification.
type NotificationDTO struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	ClubID    string            `json:"club_id"`
	ChargeID  string            `json:"charge_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// GenerateResponse reports a generation run.
type GenerateResponse struct {
	AsOf   string `json:"as_of"`
	Period string `json:"period,omitempty"`
	dues.RunResult
}

// OverdueResponse reports an overdue sweep.
type OverdueResponse struct {
	AsOf string `json:"as_of"`
	dues.SweepResult
}

// RemindersResponse reports a reminder sweep.
type RemindersResponse struct {
	AsOf string `json:"as_of"`
	dues.ReminderResult
}

// ScenarioDTO describes a built-in demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SuggestedAt string `json:"suggested_as_of,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClubDTO(club dues.Club, cfg dues.FeeConfig) ClubDTO {
	cfg = cfg.WithDefaults()
	return ClubDTO{
		ID:         string(club.ID),
		Name:       club.Name,
		MonthlyFee: cfg.MonthlyFee.String(),
		DueDay:     cfg.DueDay,
		Currency:   cfg.Currency,
	}
}

// toChargeDTO renders a charge. dueDay <= 0 omits the due date.
func toChargeDTO(c dues.Charge, dueDay int, loc *time.Location) ChargeDTO {
	dto := ChargeDTO{
		ID:            string(c.ID),
		ClubID:        string(c.ClubID),
		UserID:        string(c.UserID),
		DuesType:      string(c.DuesType),
		Period:        c.Period.String(),
		Amount:        c.Amount.StringFixed(2),
		Currency:      c.Currency,
		Status:        string(c.Status),
		ReminderCount: c.ReminderCount,
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if c.OriginalAmount != nil {
		dto.OriginalAmount = strPtr(c.OriginalAmount.StringFixed(2))
	}
	if c.CreditApplied != nil {
		dto.CreditApplied = strPtr(c.CreditApplied.StringFixed(2))
	}
	if dueDay > 0 {
		if due, err := dues.EffectiveDueDate(c, dueDay, loc); err == nil {
			dto.DueDate = strPtr(due.Format("2006-01-02"))
		}
	}
	return dto
}

func toNotificationDTO(n dues.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        string(n.ID),
		UserID:    string(n.UserID),
		ClubID:    string(n.ClubID),
		ChargeID:  string(n.ChargeID),
		Kind:      n.Kind,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func strPtr(s string) *string {
	return &s
}
