// Package service exposes signup submission and the admin account operations
// built on top of it.
package service

import (
	"context"
	"errors"
	"log/slog"

	"onboard/internal/countries"
	"onboard/internal/email"
	"onboard/internal/password"
	"onboard/internal/phone"
	"onboard/internal/platform/metrics"
	settings "onboard/internal/settings/models"
	"onboard/internal/signup/device"
	"onboard/internal/signup/models"
	"onboard/internal/signup/validation"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	pkgemail "onboard/pkg/email"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
)

type PrimaryStore interface {
	Create(ctx context.Context, account *models.PrimaryAccount) error
	Update(ctx context.Context, account *models.PrimaryAccount) error
	FindByID(ctx context.Context, accountID id.PrimaryAccountID) (*models.PrimaryAccount, error)
	FindByEmail(ctx context.Context, email string) (*models.PrimaryAccount, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type AuthAccountStore interface {
	Create(ctx context.Context, account *models.AuthAccount) error
	Update(ctx context.Context, account *models.AuthAccount) error
	FindByID(ctx context.Context, authID id.AuthAccountID) (*models.AuthAccount, error)
	FindByLogin(ctx context.Context, login string) (*models.AuthAccount, error)
}

// Validator runs the full signup pipeline.
type Validator interface {
	Validate(ctx context.Context, req *models.SignupRequest) (*models.ValidationVerdict, error)
}

type CountryLister interface {
	List() []countries.Country
}

// PasswordHasher hashes passwords before they reach a store.
type PasswordHasher interface {
	Hash(secret string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates signup validation and account provisioning.
type Service struct {
	policies       validation.PolicySource
	pipeline       Validator
	email          validation.EmailValidator
	phone          validation.PhoneValidator
	countries      CountryLister
	primaries      PrimaryStore
	auths          AuthAccountStore
	provisioner    *Provisioner
	hasher         PasswordHasher
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	deviceLabel    func(userAgent string) string
}

// Deps groups the collaborators Service cannot work without.
type Deps struct {
	Policies  validation.PolicySource
	Pipeline  Validator
	Email     validation.EmailValidator
	Phone     validation.PhoneValidator
	Countries CountryLister
	Primaries PrimaryStore
	Auths     AuthAccountStore
	Tx        StoreTx
	Hasher    PasswordHasher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDeviceParser overrides how registration device labels are derived.
func WithDeviceParser(fn func(userAgent string) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.deviceLabel = fn
		}
	}
}

// New constructs a Service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		policies:    deps.Policies,
		pipeline:    deps.Pipeline,
		email:       deps.Email,
		phone:       deps.Phone,
		countries:   deps.Countries,
		primaries:   deps.Primaries,
		auths:       deps.Auths,
		hasher:      deps.Hasher,
		logger:      slog.Default(),
		deviceLabel: device.ParseUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.provisioner = NewProvisioner(deps.Tx, s.logger, s.metrics)
	return s
}

// ValidateEmail runs the email stages for the live form check.
func (s *Service) ValidateEmail(ctx context.Context, address string) (email.Result, error) {
	address = pkgemail.Normalize(address)
	if address == "" {
		return email.Result{Valid: false, Messages: []string{validation.MsgEmailRequired}}, nil
	}
	res, err := s.email.Validate(ctx, address, s.policies.EmailPolicy(ctx))
	if err != nil {
		return email.Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "email validation unavailable")
	}
	return res, nil
}

// ValidatePhone runs the phone checks. A missing country falls back to the
// configured default, as in a full submission.
func (s *Service) ValidatePhone(ctx context.Context, raw, countryID string) phone.Result {
	if countryID == "" {
		countryID = s.policies.RegistrationPolicy(ctx).DefaultCountry
	}
	return s.phone.Validate(ctx, raw, countryID, s.policies.PhonePolicy(ctx))
}

func (s *Service) ValidatePassword(ctx context.Context, pw string) password.Result {
	return password.Score(pw, s.policies.PasswordPolicy(ctx))
}

// Rules returns the active policies, phone countries and dynamic field schema.
func (s *Service) Rules(ctx context.Context) models.Rules {
	list := s.countries.List()
	out := make([]models.Country, 0, len(list))
	for _, c := range list {
		out = append(out, models.Country{ID: c.ID, Name: c.Name, PhoneCode: c.PhoneCode})
	}
	fields := s.policies.DynamicFields(ctx)
	if fields == nil {
		fields = []settings.FieldDescriptor{}
	}
	return models.Rules{
		Password:      s.policies.PasswordPolicy(ctx),
		Email:         s.policies.EmailPolicy(ctx),
		Phone:         s.policies.PhonePolicy(ctx),
		Registration:  s.policies.RegistrationPolicy(ctx),
		DynamicFields: fields,
		Countries:     out,
	}
}

// GetAccount returns a primary account with its linked auth account, if any.
func (s *Service) GetAccount(ctx context.Context, accountID id.PrimaryAccountID) (*models.AccountView, error) {
	account, err := s.primaries.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	view := &models.AccountView{Account: account}
	if !account.IsLinked() {
		return view, nil
	}
	auth, err := s.auths.FindByID(ctx, *account.AuthAccountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "linked auth account missing",
				"account_id", account.ID.String(),
				"auth_account_id", account.AuthAccountID.String(),
			)
			return view, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load auth account")
	}
	view.AuthAccount = auth
	view.Linked = auth.LinkedTo(account.ID)
	return view, nil
}
