package models

import (
	"errors"
	"strconv"
	"strings"

	"onboard/internal/settings/models"
)

var (
	ErrNotWholeNumber = errors.New("not a whole number")
	ErrNotNumber      = errors.New("not a number")
)

// CoerceField converts a raw submitted value to the Go type of its descriptor:
//
//	char, text, selection, date, datetime, binary -> string
//	integer                                       -> int64
//	float                                         -> float64
//	boolean                                       -> bool
//
// present reports whether the user supplied a value. Booleans are always present.
// A zero number is present only when the raw value was non-empty.
func CoerceField(desc models.FieldDescriptor, raw string) (value any, present bool, err error) {
	raw = strings.TrimSpace(raw)
	switch desc.Type {
	case models.FieldBoolean:
		return parseBool(raw), true, nil
	case models.FieldInteger:
		if raw == "" {
			return int64(0), false, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false, ErrNotWholeNumber
		}
		return n, true, nil
	case models.FieldFloat:
		if raw == "" {
			return float64(0), false, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false, ErrNotNumber
		}
		return f, true, nil
	default:
		return raw, raw != "", nil
	}
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "on", "yes", "y", "t":
		return true
	}
	return false
}

// UpdatePrimaryAccountRequest is an admin edit. Nil fields are left unchanged.
type UpdatePrimaryAccountRequest struct {
	Kind           *AccountKind `json:"account_type"`
	FirstName      *string      `json:"first_name"`
	LastName       *string      `json:"last_name"`
	CompanyName    *string      `json:"company_name"`
	Email          *string      `json:"email"`
	Phone          *string      `json:"phone"`
	PhoneCountryID *string      `json:"phone_country_id"`
	TaxID          *string      `json:"tax_id"`
	Active         *bool        `json:"active"`
}

// PhoneChanged reports whether the edit touches the phone number or its country.
func (r *UpdatePrimaryAccountRequest) PhoneChanged(current *PrimaryAccount) bool {
	if r.Phone != nil && strings.TrimSpace(*r.Phone) != current.Phone {
		return true
	}
	return r.PhoneCountryID != nil && strings.ToUpper(strings.TrimSpace(*r.PhoneCountryID)) != current.PhoneCountryID
}

// IsEmpty reports whether the edit changes nothing.
func (r *UpdatePrimaryAccountRequest) IsEmpty() bool {
	return r.Kind == nil && r.FirstName == nil && r.LastName == nil && r.CompanyName == nil &&
		r.Email == nil && r.Phone == nil && r.PhoneCountryID == nil && r.TaxID == nil && r.Active == nil
}

// ApplyTo copies the non-phone edits onto p. Phone fields are applied by the
// caller after re-validation.
func (r *UpdatePrimaryAccountRequest) ApplyTo(p *PrimaryAccount) {
	if r.Kind != nil {
		p.Kind = AccountKind(strings.ToLower(strings.TrimSpace(string(*r.Kind))))
	}
	if r.FirstName != nil {
		p.FirstName = strings.TrimSpace(*r.FirstName)
	}
	if r.LastName != nil {
		p.LastName = strings.TrimSpace(*r.LastName)
	}
	if r.CompanyName != nil {
		p.CompanyName = strings.TrimSpace(*r.CompanyName)
	}
	if r.TaxID != nil {
		p.TaxID = strings.TrimSpace(*r.TaxID)
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
}

// AccountView is the admin read model of a primary account and its linkage.
type AccountView struct {
	Account     *PrimaryAccount `json:"account"`
	AuthAccount *AuthAccount    `json:"auth_account,omitempty"`
	Linked      bool            `json:"linked"`
}
