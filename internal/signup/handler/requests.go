package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"onboard/internal/signup/models"
	dErrors "onboard/pkg/domain-errors"
)

// validate enforces structural bounds only. Business rules live in the pipeline
// so their messages reach the form.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("account_kind", func(fl validator.FieldLevel) bool {
		return models.AccountKind(strings.ToLower(strings.TrimSpace(fl.Field().String()))).IsValid()
	})
	return v
}

func structError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request")
}

type validateEmailRequest struct {
	Email string `json:"email" validate:"max=254"`
}

func (r *validateEmailRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structError(err)
	}
	return nil
}

type validatePhoneRequest struct {
	Phone     string `json:"phone" validate:"max=32"`
	CountryID string `json:"country_id" validate:"omitempty,max=8"`
}

func (r *validatePhoneRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structError(err)
	}
	return nil
}

type validatePasswordRequest struct {
	Password string `json:"password" validate:"max=256"`
}

func (r *validatePasswordRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structError(err)
	}
	return nil
}

type signupRequest struct {
	AccountType     string            `json:"account_type" validate:"max=32"`
	FirstName       string            `json:"first_name" validate:"max=128"`
	LastName        string            `json:"last_name" validate:"max=128"`
	CompanyName     string            `json:"company_name" validate:"max=256"`
	Email           string            `json:"email" validate:"max=254"`
	Phone           string            `json:"phone" validate:"max=32"`
	PhoneCountryID  string            `json:"phone_country_id" validate:"max=8"`
	Password        string            `json:"password" validate:"max=256"`
	ConfirmPassword string            `json:"confirm_password" validate:"max=256"`
	TaxID           string            `json:"tax_id" validate:"max=64"`
	DynamicFields   map[string]string `json:"dynamic_fields" validate:"max=64,dive,keys,max=64,endkeys,max=4096"`
}

func (r *signupRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structError(err)
	}
	return nil
}

func (r *signupRequest) toModel() *models.SignupRequest {
	return &models.SignupRequest{
		Kind:            models.AccountKind(r.AccountType),
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		CompanyName:     r.CompanyName,
		Email:           r.Email,
		Phone:           r.Phone,
		PhoneCountryID:  r.PhoneCountryID,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
		TaxID:           r.TaxID,
		DynamicFields:   r.DynamicFields,
	}
}

type updateAccountRequest struct {
	AccountType    *string `json:"account_type" validate:"omitempty,account_kind"`
	FirstName      *string `json:"first_name" validate:"omitempty,max=128"`
	LastName       *string `json:"last_name" validate:"omitempty,max=128"`
	CompanyName    *string `json:"company_name" validate:"omitempty,max=256"`
	Email          *string `json:"email" validate:"omitempty,email,max=254"`
	Phone          *string `json:"phone" validate:"omitempty,max=32"`
	PhoneCountryID *string `json:"phone_country_id" validate:"omitempty,max=8"`
	TaxID          *string `json:"tax_id" validate:"omitempty,max=64"`
	Active         *bool   `json:"active"`
}

func (r *updateAccountRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return structError(err)
	}
	return nil
}

func (r *updateAccountRequest) toModel() *models.UpdatePrimaryAccountRequest {
	out := &models.UpdatePrimaryAccountRequest{
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		CompanyName:    r.CompanyName,
		Email:          r.Email,
		Phone:          r.Phone,
		PhoneCountryID: r.PhoneCountryID,
		TaxID:          r.TaxID,
		Active:         r.Active,
	}
	if r.AccountType != nil {
		kind := models.AccountKind(*r.AccountType)
		out.Kind = &kind
	}
	return out
}
