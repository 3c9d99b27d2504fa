// Package domain holds identifier and value types shared across packages.
package domain

import (
	"github.com/google/uuid"

	dErrors "onboard/pkg/domain-errors"
)

// PrimaryAccountID identifies a primary (CRM) account record.
type PrimaryAccountID uuid.UUID

// AuthAccountID identifies a login account record.
type AuthAccountID uuid.UUID

func (id PrimaryAccountID) String() string { return uuid.UUID(id).String() }
func (id AuthAccountID) String() string    { return uuid.UUID(id).String() }

func (id PrimaryAccountID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuthAccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders ids as canonical UUID strings in JSON and logs.
func (id PrimaryAccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuthAccountID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *PrimaryAccountID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *AuthAccountID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// NewPrimaryAccountID returns a random PrimaryAccountID.
func NewPrimaryAccountID() PrimaryAccountID { return PrimaryAccountID(uuid.New()) }

// NewAuthAccountID returns a random AuthAccountID.
func NewAuthAccountID() AuthAccountID { return AuthAccountID(uuid.New()) }

// ParsePrimaryAccountID parses s at a trust boundary. Empty and nil UUIDs are rejected.
func ParsePrimaryAccountID(s string) (PrimaryAccountID, error) {
	u, err := parseUUID(s, "primary account id")
	return PrimaryAccountID(u), err
}

// ParseAuthAccountID parses s at a trust boundary. Empty and nil UUIDs are rejected.
func ParseAuthAccountID(s string) (AuthAccountID, error) {
	u, err := parseUUID(s, "auth account id")
	return AuthAccountID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
