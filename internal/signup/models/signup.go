package models

import (
	"strings"

	"onboard/internal/settings/models"
	id "onboard/pkg/domain"
	pkgemail "onboard/pkg/email"
)

// AccountKind selects which name fields a signup must carry.
type AccountKind string

const (
	KindIndividual AccountKind = "individual"
	KindCompany    AccountKind = "company"
)

func (k AccountKind) IsValid() bool {
	return k == KindIndividual || k == KindCompany
}

// SignupRequest is one submitted signup form. It is never persisted.
type SignupRequest struct {
	Kind            AccountKind       `json:"account_type"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	CompanyName     string            `json:"company_name"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	PhoneCountryID  string            `json:"phone_country_id"`
	Password        string            `json:"password"`
	ConfirmPassword string            `json:"confirm_password"`
	TaxID           string            `json:"tax_id"`
	DynamicFields   map[string]string `json:"dynamic_fields"`
	ClientIP        string            `json:"-"`
	UserAgent       string            `json:"-"`
}

// Normalize trims every text field and lower-cases the email. Passwords are left
// as submitted.
func (r *SignupRequest) Normalize() {
	if r == nil {
		return
	}
	r.Kind = AccountKind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	if r.Kind == "" {
		r.Kind = KindIndividual
	}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.Email = pkgemail.Normalize(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.PhoneCountryID = strings.ToUpper(strings.TrimSpace(r.PhoneCountryID))
	r.TaxID = strings.TrimSpace(r.TaxID)
	r.ClientIP = strings.TrimSpace(r.ClientIP)
	r.UserAgent = strings.TrimSpace(r.UserAgent)
	for k, v := range r.DynamicFields {
		r.DynamicFields[k] = strings.TrimSpace(v)
	}
}

// ValidationVerdict aggregates every stage of the signup pipeline.
type ValidationVerdict struct {
	Valid          bool           `json:"valid"`
	Errors         []string       `json:"errors"`
	EmailValidated bool           `json:"email_validated"`
	PhoneValidated bool           `json:"phone_validated"`
	PhoneCountryID string         `json:"phone_country_id"`
	PhoneFormatted string         `json:"phone_formatted"`
	PhoneE164      string         `json:"phone_e164"`
	PhoneType      id.PhoneType   `json:"phone_type"`
	PasswordScore  int            `json:"password_score"`
	DynamicValues  map[string]any `json:"dynamic_values"`
}

// Rules is what a signup form needs to render and pre-validate itself.
type Rules struct {
	Password      models.PasswordPolicy     `json:"password"`
	Email         models.EmailPolicy        `json:"email"`
	Phone         models.PhonePolicy        `json:"phone"`
	Registration  models.RegistrationPolicy `json:"registration"`
	DynamicFields []models.FieldDescriptor  `json:"dynamic_fields"`
	Countries     []Country                 `json:"countries"`
}

// Country is the rendered form of a phone country option.
type Country struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PhoneCode int    `json:"phone_code"`
}

// SubmitResult is the outcome of a signup submission. A rejected submission
// carries its messages; an accepted one carries the created accounts.
type SubmitResult struct {
	Success        bool            `json:"success"`
	Errors         []string        `json:"errors,omitempty"`
	RedirectTarget string          `json:"redirect_target,omitempty"`
	PrimaryAccount *PrimaryAccount `json:"-"`
	AuthAccount    *AuthAccount    `json:"-"`
}
