// Package authaccount persists login accounts of the identity system.
package authaccount

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

// InMemory enforces unique logins and at most one auth account per primary
// account, as the Postgres indexes do.
type InMemory struct {
	mu        sync.RWMutex
	byID      map[id.AuthAccountID]*models.AuthAccount
	byLogin   map[string]id.AuthAccountID
	byPrimary map[id.PrimaryAccountID]id.AuthAccountID
	// failWrites makes every write fail; used to exercise rollback paths.
	failWrites error
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:      make(map[id.AuthAccountID]*models.AuthAccount),
		byLogin:   make(map[string]id.AuthAccountID),
		byPrimary: make(map[id.PrimaryAccountID]id.AuthAccountID),
	}
}

func loginKey(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// FailWrites makes subsequent Create and Update calls return err. Pass nil to reset.
func (s *InMemory) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *InMemory) Create(_ context.Context, account *models.AuthAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	key := loginKey(account.Login)
	if _, taken := s.byLogin[key]; taken {
		return fmt.Errorf("login %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	if err := s.checkPrimaryFree(account); err != nil {
		return err
	}
	s.byID[account.ID] = clone(account)
	s.byLogin[key] = account.ID
	if account.IsLinked() {
		s.byPrimary[*account.PrimaryAccountID] = account.ID
	}
	return nil
}

func (s *InMemory) Update(_ context.Context, account *models.AuthAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	current, ok := s.byID[account.ID]
	if !ok {
		return fmt.Errorf("auth account %s: %w", account.ID, sentinel.ErrNotFound)
	}
	oldKey, newKey := loginKey(current.Login), loginKey(account.Login)
	if oldKey != newKey {
		if _, taken := s.byLogin[newKey]; taken {
			return fmt.Errorf("login %s: %w", newKey, sentinel.ErrAlreadyUsed)
		}
	}
	if err := s.checkPrimaryFree(account); err != nil {
		return err
	}
	delete(s.byLogin, oldKey)
	s.byLogin[newKey] = account.ID
	if current.IsLinked() {
		delete(s.byPrimary, *current.PrimaryAccountID)
	}
	if account.IsLinked() {
		s.byPrimary[*account.PrimaryAccountID] = account.ID
	}
	s.byID[account.ID] = clone(account)
	return nil
}

func (s *InMemory) checkPrimaryFree(account *models.AuthAccount) error {
	if !account.IsLinked() {
		return nil
	}
	if owner, taken := s.byPrimary[*account.PrimaryAccountID]; taken && owner != account.ID {
		return fmt.Errorf("primary account %s already linked: %w", *account.PrimaryAccountID, sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, authID id.AuthAccountID) (*models.AuthAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[authID]
	if !ok {
		return nil, fmt.Errorf("auth account %s: %w", authID, sentinel.ErrNotFound)
	}
	return clone(account), nil
}

func (s *InMemory) FindByLogin(_ context.Context, login string) (*models.AuthAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authID, ok := s.byLogin[loginKey(login)]
	if !ok {
		return nil, fmt.Errorf("auth account with login: %w", sentinel.ErrNotFound)
	}
	return clone(s.byID[authID]), nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Snapshot is an opaque copy of the store contents used for rollback.
type Snapshot struct {
	byID      map[id.AuthAccountID]*models.AuthAccount
	byLogin   map[string]id.AuthAccountID
	byPrimary map[id.PrimaryAccountID]id.AuthAccountID
}

func (s *InMemory) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		byID:      make(map[id.AuthAccountID]*models.AuthAccount, len(s.byID)),
		byLogin:   maps.Clone(s.byLogin),
		byPrimary: maps.Clone(s.byPrimary),
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
	s.byLogin = snap.byLogin
	s.byPrimary = snap.byPrimary
}

func clone(a *models.AuthAccount) *models.AuthAccount {
	c := *a
	c.Extra = maps.Clone(a.Extra)
	if a.PrimaryAccountID != nil {
		primaryID := *a.PrimaryAccountID
		c.PrimaryAccountID = &primaryID
	}
	return &c
}
