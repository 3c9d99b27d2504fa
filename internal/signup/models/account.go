package models

import (
	"strings"
	"time"

	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
)

const unnamedUser = "Unnamed User"

// PrimaryAccount is the durable registration record.
//
// Invariants:
//   - Email is non-empty and normalized
//   - Kind individual requires first and last name
//   - Kind company requires a company name
//   - Once linked, AuthAccountID never changes
type PrimaryAccount struct {
	ID             id.PrimaryAccountID `json:"id"`
	Kind           AccountKind         `json:"account_type"`
	FirstName      string              `json:"first_name"`
	LastName       string              `json:"last_name"`
	CompanyName    string              `json:"company_name"`
	Email          string              `json:"email"`
	Phone          string              `json:"phone"`
	PhoneCountryID string              `json:"phone_country_id"`
	PhoneType      id.PhoneType        `json:"phone_type"`
	TaxID          string              `json:"tax_id"`
	PasswordHash   string              `json:"-"`
	EmailValidated bool                `json:"email_validated"`
	PhoneValidated bool                `json:"phone_validated"`
	PasswordScore  int                 `json:"password_score"`
	RegistrationIP string              `json:"registration_ip"`
	UserAgent      string              `json:"user_agent"`
	DeviceLabel    string              `json:"device_label"`
	DynamicFields  map[string]any      `json:"dynamic_fields"`
	Active         bool                `json:"active"`
	AuthAccountID  *id.AuthAccountID   `json:"auth_account_id,omitempty"`
	RegisteredAt   time.Time           `json:"registered_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewPrimaryAccount builds an active, unlinked account and checks its invariants.
func NewPrimaryAccount(
	accountID id.PrimaryAccountID,
	kind AccountKind,
	firstName, lastName, companyName, email string,
	now time.Time,
) (*PrimaryAccount, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "primary account id cannot be nil")
	}
	p := &PrimaryAccount{
		ID:            accountID,
		Kind:          kind,
		FirstName:     strings.TrimSpace(firstName),
		LastName:      strings.TrimSpace(lastName),
		CompanyName:   strings.TrimSpace(companyName),
		Email:         email,
		PhoneType:     id.PhoneTypeUnknown,
		DynamicFields: map[string]any{},
		Active:        true,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}
	if err := p.CheckInvariants(); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckInvariants is called on construction and before every write.
func (p *PrimaryAccount) CheckInvariants() error {
	if strings.TrimSpace(p.Email) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "email is required")
	}
	switch p.Kind {
	case KindIndividual:
		if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "individual accounts require first and last name")
		}
	case KindCompany:
		if strings.TrimSpace(p.CompanyName) == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "company accounts require a company name")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid account type")
	}
	return nil
}

// DisplayName composes the name shown on the auth account.
func (p *PrimaryAccount) DisplayName() string {
	if p.Kind == KindCompany && p.CompanyName != "" {
		return p.CompanyName
	}
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	default:
		return unnamedUser
	}
}

func (p *PrimaryAccount) IsLinked() bool {
	return p.AuthAccountID != nil && !p.AuthAccountID.IsNil()
}

// LinkAuthAccount sets the back-reference. Relinking to the same account is a no-op.
func (p *PrimaryAccount) LinkAuthAccount(authID id.AuthAccountID, now time.Time) error {
	if authID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "auth account id cannot be nil")
	}
	if p.IsLinked() {
		if *p.AuthAccountID == authID {
			return nil
		}
		return dErrors.New(dErrors.CodeInvariantViolation, "primary account is already linked to another auth account")
	}
	p.AuthAccountID = &authID
	p.UpdatedAt = now
	return nil
}

// RolePortal is the role given to self-service signups.
const RolePortal = "portal"

// AuthAccount is the login-capable account owned by the identity system.
type AuthAccount struct {
	ID               id.AuthAccountID     `json:"id"`
	Login            string               `json:"login"`
	Email            string               `json:"email"`
	DisplayName      string               `json:"display_name"`
	Phone            string               `json:"phone"`
	Mobile           string               `json:"mobile"`
	CountryID        string               `json:"country_id"`
	IsCompany        bool                 `json:"is_company"`
	VAT              string               `json:"vat"`
	PasswordHash     string               `json:"-"`
	Role             string               `json:"role"`
	Active           bool                 `json:"active"`
	PrimaryAccountID *id.PrimaryAccountID `json:"primary_account_id,omitempty"`
	Extra            map[string]any       `json:"extra"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// NewAuthAccount builds an active portal account from projected fields.
func NewAuthAccount(authID id.AuthAccountID, fields AuthFields, passwordHash string, now time.Time) (*AuthAccount, error) {
	if authID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "auth account id cannot be nil")
	}
	if fields.Login == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "login is required")
	}
	a := &AuthAccount{
		ID:           authID,
		PasswordHash: passwordHash,
		Role:         RolePortal,
		Active:       true,
		Extra:        map[string]any{},
		CreatedAt:    now,
	}
	a.Apply(fields, now)
	return a, nil
}

func (a *AuthAccount) IsLinked() bool {
	return a.PrimaryAccountID != nil && !a.PrimaryAccountID.IsNil()
}

// LinkedTo reports whether the account points at primaryID.
func (a *AuthAccount) LinkedTo(primaryID id.PrimaryAccountID) bool {
	return a.IsLinked() && *a.PrimaryAccountID == primaryID
}

// LinkPrimaryAccount sets the back-reference. An account linked elsewhere is rejected.
func (a *AuthAccount) LinkPrimaryAccount(primaryID id.PrimaryAccountID, now time.Time) error {
	if a.LinkedTo(primaryID) {
		return nil
	}
	if a.IsLinked() {
		return dErrors.New(dErrors.CodeInvariantViolation, "auth account is already linked to another primary account")
	}
	a.PrimaryAccountID = &primaryID
	a.UpdatedAt = now
	return nil
}

// Apply overwrites the synced fields. Extra keys are merged, never removed.
func (a *AuthAccount) Apply(f AuthFields, now time.Time) {
	a.Login = f.Login
	a.Email = f.Email
	a.DisplayName = f.DisplayName
	a.Phone = f.Phone
	a.Mobile = f.Mobile
	a.CountryID = f.CountryID
	a.IsCompany = f.IsCompany
	a.VAT = f.VAT
	if a.Extra == nil {
		a.Extra = map[string]any{}
	}
	for k, v := range f.Extra {
		a.Extra[k] = v
	}
	a.UpdatedAt = now
}
