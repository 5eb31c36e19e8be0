/*
handlers.go - HTTP API handlers for the club dues service

PURPOSE:
  Exposes the manual trigger variants of the three daily sweeps, read
  views over clubs, charges and notifications, and demo scenarios.

ENDPOINTS:
  Admin (manual triggers):
    POST   /api/admin/dues/generate     {club_id?, year?, month?, as_of?}
    POST   /api/admin/dues/overdue      {club_id?, as_of?}
    POST   /api/admin/dues/reminders    {club_id?, as_of?}

  Clubs:
    GET    /api/clubs                   List clubs with fee configuration
    GET    /api/clubs/{id}              Club details
    GET    /api/clubs/{id}/charges      Charges (?status=unpaid|overdue|paid)

  Users:
    GET    /api/users/{id}/notifications In-app notifications, newest first

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    GET    /api/scenarios/current       Currently loaded scenario
    POST   /api/scenarios/load          Load a demo scenario
    POST   /api/scenarios/reset         Clear all data

REQUEST FLOW:
  1. Decode and validate the body (validator tags on dto.go types)
  2. Resolve as_of in the job location, defaulting to now
  3. Call Jobs, which times, logs and meters the run
  4. Serialize the aggregate counters

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Club not found
  - 500: Enumeration and storage failures
  Per-member failures inside a run never fail the request; they show up
  in the errors counter and in the logs.

SECURITY NOTE:
  No authentication. Admin routes are meant for operators behind the
  deployment's own access controls.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario fixtures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/club-dues/dues"
	"github.com/warp/club-dues/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the HTTP surface reads and seeds. Both the in-memory and
// SQLite stores implement it.
type Store interface {
	dues.ClubDirectory
	dues.FeeConfigReader
	factory.FixtureSink
	ListCharges(ctx context.Context, filter dues.ChargeFilter) ([]dues.Charge, error)
	ListChargesByStatus(ctx context.Context, status dues.ChargeStatus, filter dues.ChargeFilter) ([]dues.Charge, error)
	ListNotifications(ctx context.Context, userID dues.UserID) ([]dues.Notification, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Jobs     *Jobs
	Fixtures *factory.FixtureFactory

	validate *validator.Validate
	logger   zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(store Store, jobs *Jobs, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:    store,
		Jobs:     jobs,
		Fixtures: factory.NewFixtureFactory(),
		validate: validator.New(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ADMIN TRIGGERS
// =============================================================================

// GenerateDues runs generation. With year and month it bills that period
// regardless of the trigger day; otherwise it is the daily run as of as_of.
// POST /api/admin/dues/generate
func (h *Handler) GenerateDues(w http.ResponseWriter, r *http.Request) {
	req, now, ok := h.runRequest(w, r)
	if !ok {
		return
	}

	resp := GenerateResponse{AsOf: now.Format("2006-01-02")}
	var err error
	if req.Year != 0 {
		period := dues.NewYearMonth(req.Year, time.Month(req.Month))
		resp.Period = period.String()
		resp.RunResult, err = h.Jobs.GenerateForPeriod(r.Context(), dues.ClubID(req.ClubID), period, now)
	} else {
		resp.RunResult, err = h.Jobs.Generate(r.Context(), dues.ClubID(req.ClubID), now)
	}
	if err != nil {
		h.writeRunError(w, "Generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RunOverdue runs the overdue sweep.
// POST /api/admin/dues/overdue
func (h *Handler) RunOverdue(w http.ResponseWriter, r *http.Request) {
	req, now, ok := h.runRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Jobs.Overdue(r.Context(), dues.ClubID(req.ClubID), now)
	if err != nil {
		h.writeRunError(w, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, OverdueResponse{AsOf: now.Format("2006-01-02"), SweepResult: res})
}

// RunReminders runs the reminder sweep.
// POST /api/admin/dues/reminders
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	req, now, ok := h.runRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Jobs.Remind(r.Context(), dues.ClubID(req.ClubID), now)
	if err != nil {
		h.writeRunError(w, "Reminder sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RemindersResponse{AsOf: now.Format("2006-01-02"), ReminderResult: res})
}

// runRequest decodes a RunRequest (an empty body is allowed) and resolves
// the effective "now".
func (h *Handler) runRequest(w http.ResponseWriter, r *http.Request) (RunRequest, time.Time, bool) {
	var req RunRequest
	if !h.decode(w, r, &req, true) {
		return req, time.Time{}, false
	}
	if req.ClubID != "" {
		if _, err := h.Store.GetClub(r.Context(), dues.ClubID(req.ClubID)); err != nil {
			h.writeRunError(w, "Unknown club", err)
			return req, time.Time{}, false
		}
	}

	now := h.Jobs.Now()
	if req.AsOf != "" {
		asOf, err := time.ParseInLocation("2006-01-02", req.AsOf, h.Jobs.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return req, time.Time{}, false
		}
		// Keep the time of day so as_of behaves like a clock override.
		now = time.Date(asOf.Year(), asOf.Month(), asOf.Day(),
			now.Hour(), now.Minute(), now.Second(), 0, h.Jobs.Location)
	}
	return req, now, true
}

func (h *Handler) writeRunError(w http.ResponseWriter, message string, err error) {
	switch {
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case dues.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// =============================================================================
// CLUB HANDLERS
// =============================================================================

// ListClubs returns every club with its fee configuration.
// GET /api/clubs
func (h *Handler) ListClubs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clubs, err := h.Store.ListClubs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clubs", err)
		return
	}

	dtos := make([]ClubDTO, 0, len(clubs))
	for _, c := range clubs {
		cfg, err := h.Store.GetFeeConfig(ctx, c.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read fee config", err)
			return
		}
		dtos = append(dtos, toClubDTO(c, cfg))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClub returns one club.
// GET /api/clubs/{id}
func (h *Handler) GetClub(w http.ResponseWriter, r *http.Request) {
	club, cfg, ok := h.club(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toClubDTO(club, cfg))
}

// ListClubCharges returns a club's charges, optionally by status.
// GET /api/clubs/{id}/charges?status=unpaid
func (h *Handler) ListClubCharges(w http.ResponseWriter, r *http.Request) {
	club, cfg, ok := h.club(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	filter := dues.ChargeFilter{ClubID: club.ID}
	var charges []dues.Charge
	var err error
	switch status := dues.ChargeStatus(r.URL.Query().Get("status")); status {
	case "":
		charges, err = h.Store.ListCharges(ctx, filter)
	case dues.StatusUnpaid, dues.StatusOverdue, dues.StatusPaid:
		charges, err = h.Store.ListChargesByStatus(ctx, status, filter)
	default:
		writeError(w, http.StatusBadRequest, "Invalid status", fmt.Errorf("unknown status %q", status))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list charges", err)
		return
	}

	dueDay := cfg.WithDefaults().DueDay
	dtos := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		dtos[i] = toChargeDTO(c, dueDay, h.Jobs.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) club(w http.ResponseWriter, r *http.Request) (dues.Club, dues.FeeConfig, bool) {
	ctx := r.Context()
	id := dues.ClubID(chi.URLParam(r, "id"))
	club, err := h.Store.GetClub(ctx, id)
	if err != nil {
		if dues.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Club not found", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to get club", err)
		}
		return club, dues.FeeConfig{}, false
	}
	cfg, err := h.Store.GetFeeConfig(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read fee config", err)
		return club, cfg, false
	}
	return club, cfg, true
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUserNotifications returns a user's in-app notifications.
// GET /api/users/{id}/notifications
func (h *Handler) ListUserNotifications(w http.ResponseWriter, r *http.Request) {
	userID := dues.UserID(chi.URLParam(r, "id"))
	notes, err := h.Store.ListNotifications(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list notifications", err)
		return
	}
	dtos := make([]NotificationDTO, len(notes))
	for i, n := range notes {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the built-in scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario ID.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadScenario(r.Context(), s); err != nil {
		h.logger.Error().Err(err).Str("scenario_id", s.ID).Msg("load scenario")
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = s.ID
	h.logger.Info().Str("scenario_id", s.ID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. allowEmpty accepts
// a missing body as the zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
