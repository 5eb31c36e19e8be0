/*
store.go - Collaborator interfaces consumed by the dues engine

PURPOSE:
  Defines everything the sweeps read from or write to. Club configuration,
  the membership directory and push delivery are owned by other systems;
  this package only consumes them through the contracts below.

KEY INTERFACES:
  ClubDirectory:       Enumerate clubs (enumeration failure fails the run)
  FeeConfigReader:     Read-only fee configuration per club
  MembershipDirectory: Active members of a club
  ExemptionStore:      Exemption grants in enumeration order
  ChargeStore:         Charge persistence with conditional create
  TokenProvider:       Push tokens per member
  PushSender:          Push delivery (token pruning is the sender's job)
  NotificationStore:   In-app notification records

IDEMPOTENCY:
  CreateChargeIfAbsent is the single conditional-create operation keyed by
  ChargeKey. Implementations report created=false, not an error, when a
  charge for the key already exists.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - dues/store/memory.go: In-memory for testing
*/
package dues

import (
	"context"
	"time"
)

type ClubDirectory interface {
	ListClubs(ctx context.Context) ([]Club, error)

	// GetClub returns ErrClubNotFound for unknown IDs.
	GetClub(ctx context.Context, id ClubID) (Club, error)
}

// FeeConfigReader returns the raw configuration; callers apply WithDefaults.
// A club without a stored config yields a zero FeeConfig (not billable).
type FeeConfigReader interface {
	GetFeeConfig(ctx context.Context, clubID ClubID) (FeeConfig, error)
}

type MembershipDirectory interface {
	ListActiveMembers(ctx context.Context, clubID ClubID) ([]Membership, error)
}

type ExemptionStore interface {
	// ListExemptions returns every grant for the member in enumeration order.
	ListExemptions(ctx context.Context, clubID ClubID, userID UserID) ([]ExemptionGrant, error)
}

// ChargeFilter narrows charge listings. Zero values match everything.
type ChargeFilter struct {
	ClubID    ClubID
	DuesTypes []DuesType
}

func (f ChargeFilter) Matches(c Charge) bool {
	if f.ClubID != "" && c.ClubID != f.ClubID {
		return false
	}
	if len(f.DuesTypes) == 0 {
		return true
	}
	for _, t := range f.DuesTypes {
		if c.DuesType == t {
			return true
		}
	}
	return false
}

type ChargeStore interface {
	ChargeExists(ctx context.Context, key ChargeKey) (bool, error)

	// CreateChargeIfAbsent writes the charge unless one exists for its key.
	CreateChargeIfAbsent(ctx context.Context, charge Charge) (created bool, err error)

	ListChargesByStatus(ctx context.Context, status ChargeStatus, filter ChargeFilter) ([]Charge, error)

	// MarkOverdue moves an unpaid charge to overdue. changed is false when
	// the charge was no longer unpaid.
	MarkOverdue(ctx context.Context, id ChargeID, at time.Time) (changed bool, err error)

	IncrementReminderCount(ctx context.Context, id ChargeID, at time.Time) error
}

// TokenProvider returns "" when the member has no registered device.
type TokenProvider interface {
	PushToken(ctx context.Context, userID UserID) (string, error)
}

type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type SendResult struct {
	SuccessCount int
	FailureCount int
}

type PushSender interface {
	Send(ctx context.Context, msg PushMessage) (SendResult, error)
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, n Notification) error
}
