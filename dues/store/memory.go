// Package store provides an in-memory implementation of every dues
// collaborator contract.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/club-dues/dues"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	clubs     map[dues.ClubID]dues.Club
	clubOrder []dues.ClubID
	configs   map[dues.ClubID]dues.FeeConfig
	members   map[dues.ClubID][]dues.Membership
	grants    map[memberKey][]dues.ExemptionGrant
	tokens    map[dues.UserID]string

	charges     map[dues.ChargeID]*dues.Charge
	chargeOrder []dues.ChargeID
	byKey       map[dues.ChargeKey]dues.ChargeID

	notifications []dues.Notification

	// failure injection
	failCreate        map[dues.UserID]error
	failListClubs     error
	failListClubsLeft int // < 0 means until cleared
}

type memberKey struct {
	ClubID dues.ClubID
	UserID dues.UserID
}

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.clubs = make(map[dues.ClubID]dues.Club)
	m.clubOrder = nil
	m.configs = make(map[dues.ClubID]dues.FeeConfig)
	m.members = make(map[dues.ClubID][]dues.Membership)
	m.grants = make(map[memberKey][]dues.ExemptionGrant)
	m.tokens = make(map[dues.UserID]string)
	m.charges = make(map[dues.ChargeID]*dues.Charge)
	m.chargeOrder = nil
	m.byKey = make(map[dues.ChargeKey]dues.ChargeID)
	m.notifications = nil
	m.failCreate = make(map[dues.UserID]error)
	m.failListClubs = nil
	m.failListClubsLeft = 0
}

// Reset drops all data and failure injections.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// FailCreateFor makes every charge create for userID return err.
func (m *Memory) FailCreateFor(userID dues.UserID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate[userID] = err
}

// FailListClubs makes ListClubs return err. A nil err clears the injection.
func (m *Memory) FailListClubs(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failListClubs = err
	m.failListClubsLeft = -1
}

// FailListClubsTimes makes the next n ListClubs calls return err.
func (m *Memory) FailListClubsTimes(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		err = nil
	}
	m.failListClubs = err
	m.failListClubsLeft = n
}

// =============================================================================
// FIXTURE WRITES
// =============================================================================

func (m *Memory) SaveClub(_ context.Context, club dues.Club) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clubs[club.ID]; !ok {
		m.clubOrder = append(m.clubOrder, club.ID)
	}
	m.clubs[club.ID] = club
	return nil
}

func (m *Memory) SaveFeeConfig(_ context.Context, cfg dues.FeeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ClubID] = cfg
	return nil
}

// SaveMembership inserts or replaces the membership for (club, user).
func (m *Memory) SaveMembership(_ context.Context, ms dues.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.members[ms.ClubID]
	for i := range list {
		if list[i].UserID == ms.UserID {
			list[i] = ms
			return nil
		}
	}
	m.members[ms.ClubID] = append(list, ms)
	return nil
}

// SaveExemption appends a grant. Enumeration order is insertion order.
func (m *Memory) SaveExemption(_ context.Context, grant dues.ExemptionGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := grant.Scope()
	k := memberKey{ClubID: s.ClubID, UserID: s.UserID}
	m.grants[k] = append(m.grants[k], grant)
	return nil
}

func (m *Memory) SavePushToken(_ context.Context, userID dues.UserID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = token
	return nil
}

// =============================================================================
// DIRECTORY READS
// =============================================================================

func (m *Memory) ListClubs(_ context.Context) ([]dues.Club, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failListClubs; err != nil {
		if m.failListClubsLeft > 0 {
			m.failListClubsLeft--
			if m.failListClubsLeft == 0 {
				m.failListClubs = nil
			}
		}
		return nil, err
	}
	result := make([]dues.Club, 0, len(m.clubOrder))
	for _, id := range m.clubOrder {
		result = append(result, m.clubs[id])
	}
	return result, nil
}

func (m *Memory) GetClub(_ context.Context, id dues.ClubID) (dues.Club, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	club, ok := m.clubs[id]
	if !ok {
		return dues.Club{}, dues.ErrClubNotFound
	}
	return club, nil
}

func (m *Memory) GetFeeConfig(_ context.Context, clubID dues.ClubID) (dues.FeeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[clubID]
	if !ok {
		return dues.FeeConfig{ClubID: clubID}, nil
	}
	return cfg, nil
}

func (m *Memory) ListActiveMembers(_ context.Context, clubID dues.ClubID) ([]dues.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []dues.Membership
	for _, ms := range m.members[clubID] {
		if ms.Status == dues.MembershipActive {
			result = append(result, ms)
		}
	}
	return result, nil
}

func (m *Memory) ListExemptions(_ context.Context, clubID dues.ClubID, userID dues.UserID) ([]dues.ExemptionGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	grants := m.grants[memberKey{ClubID: clubID, UserID: userID}]
	result := make([]dues.ExemptionGrant, len(grants))
	copy(result, grants)
	return result, nil
}

func (m *Memory) PushToken(_ context.Context, userID dues.UserID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens[userID], nil
}

// =============================================================================
// CHARGES
// =============================================================================

func (m *Memory) ChargeExists(_ context.Context, key dues.ChargeKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byKey[key]
	return ok, nil
}

// CreateChargeIfAbsent checks and writes under one lock.
func (m *Memory) CreateChargeIfAbsent(_ context.Context, charge dues.Charge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failCreate[charge.UserID]; err != nil {
		return false, err
	}

	key := charge.Key()
	if _, ok := m.byKey[key]; ok {
		return false, nil
	}
	if _, ok := m.charges[charge.ID]; ok {
		return false, dues.ErrDuplicateCharge
	}

	c := charge
	m.charges[c.ID] = &c
	m.chargeOrder = append(m.chargeOrder, c.ID)
	m.byKey[key] = c.ID
	return true, nil
}

func (m *Memory) ListChargesByStatus(_ context.Context, status dues.ChargeStatus, filter dues.ChargeFilter) ([]dues.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(c *dues.Charge) bool {
		return c.Status == status && filter.Matches(*c)
	}), nil
}

// ListCharges returns charges of every status matching filter in creation order.
func (m *Memory) ListCharges(_ context.Context, filter dues.ChargeFilter) ([]dues.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(c *dues.Charge) bool { return filter.Matches(*c) }), nil
}

func (m *Memory) listLocked(keep func(*dues.Charge) bool) []dues.Charge {
	var result []dues.Charge
	for _, id := range m.chargeOrder {
		if c := m.charges[id]; keep(c) {
			result = append(result, *c)
		}
	}
	return result
}

func (m *Memory) GetCharge(_ context.Context, id dues.ChargeID) (dues.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.charges[id]
	if !ok {
		return dues.Charge{}, dues.ErrChargeNotFound
	}
	return *c, nil
}

func (m *Memory) MarkOverdue(_ context.Context, id dues.ChargeID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[id]
	if !ok {
		return false, dues.ErrChargeNotFound
	}
	if c.Status != dues.StatusUnpaid {
		return false, nil
	}
	c.Status = dues.StatusOverdue
	c.UpdatedAt = at
	return true, nil
}

func (m *Memory) IncrementReminderCount(_ context.Context, id dues.ChargeID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.charges[id]
	if !ok {
		return dues.ErrChargeNotFound
	}
	c.ReminderCount++
	c.UpdatedAt = at
	return nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) SaveNotification(_ context.Context, n dues.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (m *Memory) ListNotifications(_ context.Context, userID dues.UserID) ([]dues.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []dues.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].UserID == userID {
			result = append(result, m.notifications[i])
		}
	}
	return result, nil
}
