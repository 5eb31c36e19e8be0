/*
Package sqlite provides a SQLite-backed implementation of the dues storage
interfaces.

PURPOSE:
  Implements every collaborator contract the dues engine consumes using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  dues.ClubDirectory:       Club enumeration
  dues.FeeConfigReader:     Per-club fee configuration
  dues.MembershipDirectory: Active members
  dues.ExemptionStore:      Exemption grants (enumeration order = rowid)
  dues.ChargeStore:         Charges with conditional create
  dues.TokenProvider:       Push tokens
  dues.NotificationStore:   In-app notifications

IDEMPOTENCY:
  charges.idempotency_key is UNIQUE and holds ChargeKey.String().
  CreateChargeIfAbsent is a single conditional insert:
    INSERT ... ON CONFLICT(idempotency_key) DO NOTHING
  and reports created=false when no row was affected.

STATUS TRANSITIONS:
  MarkOverdue only updates rows that are still unpaid, so a concurrent
  payment is never overwritten.

KEY TABLES:
  clubs, fee_configs, memberships: Directory data (loaded from fixtures)
  exemptions:                      Grants of all three kinds
  charges:                         One row per charge
  push_tokens, notifications:      Reminder delivery

ENCODING:
  Money is stored as decimal text, times as RFC3339 text, months as
  "YYYY-MM" text.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/dues.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - dues/store.go: Interface definitions
  - dues/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/club-dues/dues"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Clubs
	CREATE TABLE IF NOT EXISTS clubs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Fee configuration (read-only for the engine)
	CREATE TABLE IF NOT EXISTS fee_configs (
		club_id TEXT PRIMARY KEY,
		monthly_fee TEXT NOT NULL,
		due_day INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT ''
	);

	-- Memberships
	CREATE TABLE IF NOT EXISTS memberships (
		club_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (club_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_club_status
		ON memberships(club_id, status);

	-- Exemption grants (rowid is enumeration order)
	CREATE TABLE IF NOT EXISTS exemptions (
		id TEXT PRIMARY KEY,
		club_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		start_month TEXT NOT NULL,
		end_month TEXT NOT NULL,
		credit_apply_month TEXT,
		remaining_credit TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_exemptions_member
		ON exemptions(club_id, user_id);

	-- Charges
	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		club_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		dues_type TEXT NOT NULL,
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		original_amount TEXT,
		credit_applied TEXT,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'unpaid',
		reminder_count INTEGER NOT NULL DEFAULT 0,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Sweeps scan by status (hot path)
	CREATE INDEX IF NOT EXISTS idx_charges_status_club
		ON charges(status, club_id);
	CREATE INDEX IF NOT EXISTS idx_charges_club
		ON charges(club_id);

	-- Push tokens
	CREATE TABLE IF NOT EXISTS push_tokens (
		user_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- In-app notifications
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		club_id TEXT NOT NULL,
		charge_id TEXT,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		data_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLUBS & FEE CONFIG (dues.ClubDirectory, dues.FeeConfigReader)
// =============================================================================

func (s *Store) SaveClub(ctx context.Context, club dues.Club) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clubs (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, club.ID, club.Name, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save club: %w", err)
	}
	return nil
}

func (s *Store) ListClubs(ctx context.Context) ([]dues.Club, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM clubs ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list clubs: %w", err)
	}
	defer rows.Close()

	var clubs []dues.Club
	for rows.Next() {
		var c dues.Club
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan club: %w", err)
		}
		clubs = append(clubs, c)
	}
	return clubs, rows.Err()
}

func (s *Store) GetClub(ctx context.Context, id dues.ClubID) (dues.Club, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c dues.Club
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM clubs WHERE id = ?", id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return dues.Club{}, dues.ErrClubNotFound
	}
	if err != nil {
		return dues.Club{}, fmt.Errorf("failed to get club: %w", err)
	}
	return c, nil
}

func (s *Store) SaveFeeConfig(ctx context.Context, cfg dues.FeeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_configs (club_id, monthly_fee, due_day, currency) VALUES (?, ?, ?, ?)
		ON CONFLICT(club_id) DO UPDATE SET
			monthly_fee = excluded.monthly_fee,
			due_day = excluded.due_day,
			currency = excluded.currency
	`, cfg.ClubID, cfg.MonthlyFee.String(), cfg.DueDay, cfg.Currency)
	if err != nil {
		return fmt.Errorf("failed to save fee config: %w", err)
	}
	return nil
}

// GetFeeConfig returns the stored config, or a zero config for clubs that
// have none.
func (s *Store) GetFeeConfig(ctx context.Context, clubID dues.ClubID) (dues.FeeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		fee string
		cfg = dues.FeeConfig{ClubID: clubID}
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT monthly_fee, due_day, currency FROM fee_configs WHERE club_id = ?", clubID,
	).Scan(&fee, &cfg.DueDay, &cfg.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return dues.FeeConfig{}, fmt.Errorf("failed to get fee config: %w", err)
	}
	cfg.MonthlyFee, err = parseMoney(fee)
	if err != nil {
		return dues.FeeConfig{}, err
	}
	return cfg, nil
}

// =============================================================================
// MEMBERSHIPS (dues.MembershipDirectory)
// =============================================================================

func (s *Store) SaveMembership(ctx context.Context, m dues.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (club_id, user_id, status) VALUES (?, ?, ?)
		ON CONFLICT(club_id, user_id) DO UPDATE SET status = excluded.status
	`, m.ClubID, m.UserID, m.Status)
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (s *Store) ListActiveMembers(ctx context.Context, clubID dues.ClubID) ([]dues.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT club_id, user_id, status FROM memberships
		WHERE club_id = ? AND status = ?
		ORDER BY rowid ASC
	`, clubID, dues.MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []dues.Membership
	for rows.Next() {
		var m dues.Membership
		if err := rows.Scan(&m.ClubID, &m.UserID, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// EXEMPTIONS (dues.ExemptionStore)
// =============================================================================

func (s *Store) SaveExemption(ctx context.Context, grant dues.ExemptionGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := grant.Scope()
	var creditApply, credit sql.NullString
	if custom, ok := grant.(dues.CustomExemption); ok {
		if !custom.CreditApply.IsZero() {
			creditApply = nullString(custom.CreditApply.String())
		}
		credit = nullString(custom.RemainingCredit.String())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exemptions
		(id, club_id, user_id, kind, start_month, end_month, credit_apply_month, remaining_credit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.ID, scope.ClubID, scope.UserID, grant.Kind(),
		scope.Range.Start.String(), scope.Range.End.String(), creditApply, credit)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: duplicate id %s", dues.ErrInvalidGrant, scope.ID)
		}
		return fmt.Errorf("failed to save exemption: %w", err)
	}
	return nil
}

func (s *Store) ListExemptions(ctx context.Context, clubID dues.ClubID, userID dues.UserID) ([]dues.ExemptionGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, club_id, user_id, kind, start_month, end_month, credit_apply_month, remaining_credit
		FROM exemptions
		WHERE club_id = ? AND user_id = ?
		ORDER BY rowid ASC
	`, clubID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exemptions: %w", err)
	}
	defer rows.Close()

	var grants []dues.ExemptionGrant
	for rows.Next() {
		g, err := scanExemption(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanExemption(rows *sql.Rows) (dues.ExemptionGrant, error) {
	var (
		scope       dues.GrantScope
		kind        string
		start, end  string
		creditApply sql.NullString
		credit      sql.NullString
	)
	if err := rows.Scan(&scope.ID, &scope.ClubID, &scope.UserID, &kind, &start, &end, &creditApply, &credit); err != nil {
		return nil, fmt.Errorf("failed to scan exemption: %w", err)
	}

	var err error
	if scope.Range.Start, err = dues.ParseYearMonth(start); err != nil {
		return nil, err
	}
	if scope.Range.End, err = dues.ParseYearMonth(end); err != nil {
		return nil, err
	}

	var (
		apply  dues.YearMonth
		amount = decimal.Zero
	)
	if creditApply.Valid {
		if apply, err = dues.ParseYearMonth(creditApply.String); err != nil {
			return nil, err
		}
	}
	if credit.Valid {
		if amount, err = parseMoney(credit.String); err != nil {
			return nil, err
		}
	}
	return dues.NewExemptionGrant(dues.ExemptionKind(kind), scope, apply, amount)
}

// =============================================================================
// CHARGES (dues.ChargeStore)
// =============================================================================

const chargeColumns = `id, club_id, user_id, dues_type, period_year, period_month, amount,
	original_amount, credit_applied, currency, status, reminder_count, created_at, updated_at`

func (s *Store) ChargeExists(ctx context.Context, key dues.ChargeKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM charges WHERE idempotency_key = ?",
		key.String(),
	).Scan(&count)

	return count > 0, err
}

// CreateChargeIfAbsent inserts the charge unless its key already exists.
func (s *Store) CreateChargeIfAbsent(ctx context.Context, c dues.Charge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO charges
		(id, club_id, user_id, dues_type, period_year, period_month, amount, original_amount,
		 credit_applied, currency, status, reminder_count, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`,
		c.ID,
		c.ClubID,
		c.UserID,
		c.DuesType,
		c.Period.Year,
		int(c.Period.Month),
		c.Amount.String(),
		nullMoney(c.OriginalAmount),
		nullMoney(c.CreditApplied),
		c.Currency,
		c.Status,
		c.ReminderCount,
		c.Key().String(),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Primary key collision: a different key reused the charge ID.
			return false, fmt.Errorf("%w: id %s", dues.ErrDuplicateCharge, c.ID)
		}
		return false, fmt.Errorf("failed to insert charge: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) ListChargesByStatus(ctx context.Context, status dues.ChargeStatus, filter dues.ChargeFilter) ([]dues.Charge, error) {
	query, args := chargeQuery(status, filter)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCharges(ctx, query, args...)
}

// ListCharges returns charges of every status matching filter in creation order.
func (s *Store) ListCharges(ctx context.Context, filter dues.ChargeFilter) ([]dues.Charge, error) {
	query, args := chargeQuery("", filter)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCharges(ctx, query, args...)
}

func chargeQuery(status dues.ChargeStatus, filter dues.ChargeFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if filter.ClubID != "" {
		where = append(where, "club_id = ?")
		args = append(args, filter.ClubID)
	}
	if len(filter.DuesTypes) > 0 {
		marks := make([]string, len(filter.DuesTypes))
		for i, t := range filter.DuesTypes {
			marks[i] = "?"
			args = append(args, t)
		}
		where = append(where, "dues_type IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT " + chargeColumns + " FROM charges"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY rowid ASC", args
}

func (s *Store) GetCharge(ctx context.Context, id dues.ChargeID) (dues.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	charges, err := s.queryCharges(ctx, "SELECT "+chargeColumns+" FROM charges WHERE id = ?", id)
	if err != nil {
		return dues.Charge{}, err
	}
	if len(charges) == 0 {
		return dues.Charge{}, dues.ErrChargeNotFound
	}
	return charges[0], nil
}

// MarkOverdue moves a charge from unpaid to overdue.
func (s *Store) MarkOverdue(ctx context.Context, id dues.ChargeID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE charges SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, dues.StatusOverdue, formatTime(at), id, dues.StatusUnpaid)
	if err != nil {
		return false, fmt.Errorf("failed to mark charge overdue: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *Store) IncrementReminderCount(ctx context.Context, id dues.ChargeID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE charges SET reminder_count = reminder_count + 1, updated_at = ?
		WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to increment reminder count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return dues.ErrChargeNotFound
	}
	return nil
}

func (s *Store) queryCharges(ctx context.Context, query string, args ...any) ([]dues.Charge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []dues.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

func scanCharge(rows *sql.Rows) (dues.Charge, error) {
	var (
		c              dues.Charge
		month          int
		amount         string
		originalAmount sql.NullString
		creditApplied  sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&c.ID, &c.ClubID, &c.UserID, &c.DuesType, &c.Period.Year, &month, &amount,
		&originalAmount, &creditApplied, &c.Currency, &c.Status, &c.ReminderCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan charge: %w", err)
	}

	c.Period.Month = time.Month(month)
	if c.Amount, err = parseMoney(amount); err != nil {
		return c, err
	}
	if c.OriginalAmount, err = parseNullMoney(originalAmount); err != nil {
		return c, err
	}
	if c.CreditApplied, err = parseNullMoney(creditApplied); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, err
	}

	return c, nil
}

// =============================================================================
// PUSH TOKENS & NOTIFICATIONS
// =============================================================================

func (s *Store) SavePushToken(ctx context.Context, userID dues.UserID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, userID, token, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save push token: %w", err)
	}
	return nil
}

// PushToken returns "" when the user has no registered token.
func (s *Store) PushToken(ctx context.Context, userID dues.UserID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var token string
	err := s.db.QueryRowContext(ctx, "SELECT token FROM push_tokens WHERE user_id = ?", userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get push token: %w", err)
	}
	return token, nil
}

func (s *Store) SaveNotification(ctx context.Context, n dues.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataJSON, _ := json.Marshal(n.Data)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, club_id, charge_id, kind, title, body, data_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.ClubID, nullString(string(n.ChargeID)), n.Kind, n.Title, n.Body,
		string(dataJSON), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID dues.UserID) ([]dues.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, club_id, charge_id, kind, title, body, data_json, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []dues.Notification
	for rows.Next() {
		var (
			n         dues.Notification
			chargeID  sql.NullString
			dataJSON  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.ClubID, &chargeID, &n.Kind, &n.Title, &n.Body, &dataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ChargeID = dues.ChargeID(chargeID.String)
		if dataJSON.Valid && dataJSON.String != "" {
			json.Unmarshal([]byte(dataJSON.String), &n.Data)
		}
		created, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		n.CreatedAt = created
		result = append(result, n)
	}
	return result, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"notifications", "push_tokens", "charges", "exemptions", "memberships", "fee_configs", "clubs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullMoney(m *dues.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.String(), Valid: true}
}

func parseMoney(value string) (dues.Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", value, err)
	}
	return d, nil
}

func parseNullMoney(value sql.NullString) (*dues.Money, error) {
	if !value.Valid {
		return nil, nil
	}
	d, err := parseMoney(value.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// formatTime stores instants as UTC so created_at sorts as text. Callers
// convert to their own zone before taking calendar dates.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", value, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
