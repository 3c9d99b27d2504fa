// Package primary persists primary account records.
package primary

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

// InMemory is a map-backed store. Email uniqueness is checked under the lock,
// mirroring the unique index of the Postgres schema.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.PrimaryAccountID]*models.PrimaryAccount
	byEmail map[string]id.PrimaryAccountID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[id.PrimaryAccountID]*models.PrimaryAccount),
		byEmail: make(map[string]id.PrimaryAccountID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *InMemory) Create(_ context.Context, account *models.PrimaryAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := emailKey(account.Email)
	if _, taken := s.byEmail[key]; taken {
		return fmt.Errorf("email %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.byID[account.ID]; exists {
		return fmt.Errorf("primary account %s: %w", account.ID, sentinel.ErrAlreadyUsed)
	}
	s.byID[account.ID] = clone(account)
	s.byEmail[key] = account.ID
	return nil
}

func (s *InMemory) Update(_ context.Context, account *models.PrimaryAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[account.ID]
	if !ok {
		return fmt.Errorf("primary account %s: %w", account.ID, sentinel.ErrNotFound)
	}
	oldKey, newKey := emailKey(current.Email), emailKey(account.Email)
	if oldKey != newKey {
		if _, taken := s.byEmail[newKey]; taken {
			return fmt.Errorf("email %s: %w", newKey, sentinel.ErrAlreadyUsed)
		}
		delete(s.byEmail, oldKey)
		s.byEmail[newKey] = account.ID
	}
	s.byID[account.ID] = clone(account)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, accountID id.PrimaryAccountID) (*models.PrimaryAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[accountID]
	if !ok {
		return nil, fmt.Errorf("primary account %s: %w", accountID, sentinel.ErrNotFound)
	}
	return clone(account), nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.PrimaryAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accountID, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, fmt.Errorf("primary account with email: %w", sentinel.ErrNotFound)
	}
	return clone(s.byID[accountID]), nil
}

func (s *InMemory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[emailKey(email)]
	return ok, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Snapshot is an opaque copy of the store contents used for rollback.
type Snapshot struct {
	byID    map[id.PrimaryAccountID]*models.PrimaryAccount
	byEmail map[string]id.PrimaryAccountID
}

func (s *InMemory) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		byID:    make(map[id.PrimaryAccountID]*models.PrimaryAccount, len(s.byID)),
		byEmail: maps.Clone(s.byEmail),
	}
	for k, v := range s.byID {
		snap.byID[k] = clone(v)
	}
	return snap
}

func (s *InMemory) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = snap.byID
	s.byEmail = snap.byEmail
	if s.byEmail == nil {
		s.byEmail = make(map[string]id.PrimaryAccountID)
	}
	if s.byID == nil {
		s.byID = make(map[id.PrimaryAccountID]*models.PrimaryAccount)
	}
}

func clone(p *models.PrimaryAccount) *models.PrimaryAccount {
	c := *p
	c.DynamicFields = maps.Clone(p.DynamicFields)
	if p.AuthAccountID != nil {
		authID := *p.AuthAccountID
		c.AuthAccountID = &authID
	}
	return &c
}
