// Package validation runs every signup check and aggregates the messages into
// one verdict.
package validation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"onboard/internal/email"
	"onboard/internal/password"
	"onboard/internal/phone"
	settings "onboard/internal/settings/models"
	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/requestcontext"
)

const (
	MsgFirstNameRequired   = "First name is required"
	MsgLastNameRequired    = "Last name is required"
	MsgCompanyNameRequired = "Company name is required"
	MsgEmailRequired       = "Email address is required"
	MsgPhoneRequired       = "Phone number is required"
	MsgPasswordRequired    = "Password is required"
	MsgPasswordMismatch    = "Passwords do not match"
	MsgInvalidKind         = "Invalid account type"
	MsgTaxIDRequired       = "VAT/CR number is required for company accounts"
	MsgTaxIDTooShort       = "VAT/CR number must be at least 10 alphanumeric characters"
)

const minTaxIDLength = 10

// Stage names reported to the failure observer.
const (
	StageRequired      = "required"
	StageEmail         = "email"
	StagePhone         = "phone"
	StagePassword      = "password"
	StageTaxID         = "tax_id"
	StageDynamicFields = "dynamic_fields"
)

// PolicySource supplies the rule sets read fresh for each submission.
type PolicySource interface {
	PasswordPolicy(ctx context.Context) settings.PasswordPolicy
	EmailPolicy(ctx context.Context) settings.EmailPolicy
	PhonePolicy(ctx context.Context) settings.PhonePolicy
	RegistrationPolicy(ctx context.Context) settings.RegistrationPolicy
	DynamicFields(ctx context.Context) []settings.FieldDescriptor
}

type EmailValidator interface {
	Validate(ctx context.Context, address string, policy settings.EmailPolicy) (email.Result, error)
}

type PhoneValidator interface {
	Validate(ctx context.Context, raw, countryID string, policy settings.PhonePolicy) phone.Result
}

// Observer counts failing stages.
type Observer interface {
	IncValidationFailure(stage string)
}

type Pipeline struct {
	policies PolicySource
	email    EmailValidator
	phone    PhoneValidator
	observer Observer
	logger   *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

func New(policies PolicySource, emailValidator EmailValidator, phoneValidator PhoneValidator, opts ...Option) *Pipeline {
	p := &Pipeline{
		policies: policies,
		email:    emailValidator,
		phone:    phoneValidator,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs every check on a normalized request. Messages from all stages are
// accumulated in a fixed order: required fields, email, phone, password, tax id,
// dynamic fields. An error is returned only when a stage without a documented
// fallback fails.
func (p *Pipeline) Validate(ctx context.Context, req *models.SignupRequest) (*models.ValidationVerdict, error) {
	ctx, span := otel.Tracer("onboard/signup/validation").Start(ctx, "signup.validate")
	defer span.End()

	verdict := &models.ValidationVerdict{
		Errors:        []string{},
		PhoneType:     id.PhoneTypeUnknown,
		DynamicValues: map[string]any{},
	}

	p.addStage(verdict, StageRequired, requiredFieldMessages(req))

	registration := p.policies.RegistrationPolicy(ctx)
	countryID := req.PhoneCountryID
	if countryID == "" {
		countryID = registration.DefaultCountry
	}

	var (
		emailRes email.Result
		phoneRes phone.Result
		pwRes    password.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	if req.Email != "" {
		g.Go(func() error {
			var err error
			emailRes, err = p.email.Validate(gctx, req.Email, p.policies.EmailPolicy(gctx))
			return err
		})
	}
	if req.Phone != "" {
		g.Go(func() error {
			phoneRes = p.phone.Validate(gctx, req.Phone, countryID, p.policies.PhonePolicy(gctx))
			return nil
		})
	}
	if req.Password != "" {
		g.Go(func() error {
			pwRes = password.Score(req.Password, p.policies.PasswordPolicy(gctx))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation aborted")
		p.logger.ErrorContext(ctx, "signup validation aborted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "registration failed")
	}

	if req.Email != "" {
		verdict.EmailValidated = emailRes.Valid
		p.addStage(verdict, StageEmail, emailRes.Messages)
	}
	if req.Phone != "" {
		verdict.PhoneValidated = phoneRes.Valid
		verdict.PhoneCountryID = countryID
		verdict.PhoneFormatted = phoneRes.Formatted
		verdict.PhoneE164 = phoneRes.E164
		verdict.PhoneType = phoneRes.Type
		p.addStage(verdict, StagePhone, phoneRes.Messages)
	}
	if req.Password != "" {
		verdict.PasswordScore = pwRes.Score
		p.addStage(verdict, StagePassword, pwRes.Messages)
	}

	if req.Kind == models.KindCompany {
		p.addStage(verdict, StageTaxID, taxIDMessages(req.TaxID))
	}

	msgs, values := dynamicFieldMessages(p.policies.DynamicFields(ctx), req.DynamicFields)
	verdict.DynamicValues = values
	p.addStage(verdict, StageDynamicFields, msgs)

	verdict.Valid = len(verdict.Errors) == 0
	span.SetAttributes(
		attribute.Bool("signup.valid", verdict.Valid),
		attribute.Int("signup.error_count", len(verdict.Errors)),
		attribute.String("signup.account_type", string(req.Kind)),
	)
	return verdict, nil
}

func (p *Pipeline) addStage(v *models.ValidationVerdict, stage string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	v.Errors = append(v.Errors, msgs...)
	if p.observer != nil {
		p.observer.IncValidationFailure(stage)
	}
}

func requiredFieldMessages(req *models.SignupRequest) []string {
	var msgs []string
	switch req.Kind {
	case models.KindIndividual:
		if req.FirstName == "" {
			msgs = append(msgs, MsgFirstNameRequired)
		}
		if req.LastName == "" {
			msgs = append(msgs, MsgLastNameRequired)
		}
	case models.KindCompany:
		if req.CompanyName == "" {
			msgs = append(msgs, MsgCompanyNameRequired)
		}
	default:
		msgs = append(msgs, MsgInvalidKind)
	}
	if req.Email == "" {
		msgs = append(msgs, MsgEmailRequired)
	}
	if req.Phone == "" {
		msgs = append(msgs, MsgPhoneRequired)
	}
	if req.Password == "" {
		msgs = append(msgs, MsgPasswordRequired)
	} else if req.Password != req.ConfirmPassword {
		msgs = append(msgs, MsgPasswordMismatch)
	}
	return msgs
}

// taxIDMessages ignores spaces and dashes; every other character must be a letter
// or digit.
func taxIDMessages(taxID string) []string {
	if strings.TrimSpace(taxID) == "" {
		return []string{MsgTaxIDRequired}
	}
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(taxID)
	n := 0
	for _, r := range cleaned {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return []string{MsgTaxIDTooShort}
		}
		n++
	}
	if n < minTaxIDLength {
		return []string{MsgTaxIDTooShort}
	}
	return nil
}

func dynamicFieldMessages(fields []settings.FieldDescriptor, raw map[string]string) ([]string, map[string]any) {
	var msgs []string
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		value, present, err := models.CoerceField(f, raw[f.Name])
		switch {
		case errors.Is(err, models.ErrNotWholeNumber):
			msgs = append(msgs, f.DisplayLabel()+" must be a whole number")
		case errors.Is(err, models.ErrNotNumber):
			msgs = append(msgs, f.DisplayLabel()+" must be a number")
		case f.Required && !present:
			msgs = append(msgs, f.DisplayLabel()+" is required")
		case present:
			values[f.Name] = value
		}
	}
	return msgs, values
}
