package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"onboard/internal/email"
	"onboard/internal/platform/metrics"
	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

const (
	msgDuplicateAccount = "an account with this email address already exists"
	msgRegistration     = "registration failed"
)

// Provisioner creates the primary account and its auth account in one atomic unit.
type Provisioner struct {
	tx      StoreTx
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewProvisioner(tx StoreTx, logger *slog.Logger, m *metrics.Metrics) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{tx: tx, logger: logger, metrics: m}
}

// Provisioned reports what a provisioning run did.
type Provisioned struct {
	Primary *models.PrimaryAccount
	Auth    *models.AuthAccount
	// Linked is true when an existing unlinked auth account was adopted.
	Linked bool
}

// Provision writes account and a matching auth account. Uniqueness is re-checked
// inside the transaction and the store's unique indexes settle races; either way
// a collision surfaces as CodeDuplicateAccount. A failed auth account write rolls
// back the primary account too.
func (p *Provisioner) Provision(ctx context.Context, account *models.PrimaryAccount) (*Provisioned, error) {
	ctx, span := otel.Tracer("onboard/signup/service").Start(ctx, "signup.provision")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.ObserveProvisioning(time.Since(start)) }()

	if err := account.CheckInvariants(); err != nil {
		return nil, err
	}

	var out *Provisioned
	err := p.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		res, err := provisionInTx(ctx, stores, account)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("signup.auth_account_linked", out.Linked))
	p.metrics.IncAccountsProvisioned()
	if out.Linked {
		p.metrics.IncAuthAccountsLinked()
	}
	return out, nil
}

func provisionInTx(ctx context.Context, stores TxStores, account *models.PrimaryAccount) (*Provisioned, error) {
	now := account.RegisteredAt

	if _, err := stores.Primary.FindByEmail(ctx, account.Email); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}

	existing, err := findUnlinkedAuth(ctx, stores.Auth, account.Email)
	if err != nil {
		return nil, err
	}

	if err := stores.Primary.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}

	fields := models.ToAuthFields(account)
	linked := existing != nil
	auth := existing
	if auth == nil {
		auth, err = models.NewAuthAccount(id.NewAuthAccountID(), fields, account.PasswordHash, now)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to build auth account")
		}
		if err := auth.LinkPrimaryAccount(account.ID, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link auth account")
		}
		err = stores.Savepoint(ctx, func(ctx context.Context) error {
			return stores.Auth.Create(ctx, auth)
		})
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Someone created the login after our check; adopt it if it is free.
			auth, err = findUnlinkedAuth(ctx, stores.Auth, account.Email)
			if err != nil {
				return nil, err
			}
			if auth == nil {
				return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
			}
			linked = true
		} else if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to create auth account")
		}
	}

	if linked {
		auth.Apply(fields, now)
		if err := auth.LinkPrimaryAccount(account.ID, now); err != nil {
			return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
		}
		if err := stores.Auth.Update(ctx, auth); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link auth account")
		}
	}

	if err := account.LinkAuthAccount(auth.ID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link primary account")
	}
	if err := stores.Primary.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link primary account")
	}
	return &Provisioned{Primary: account, Auth: auth, Linked: linked}, nil
}

// findUnlinkedAuth returns the auth account using login when it is free to adopt,
// nil when there is none, and CodeDuplicateAccount when it belongs to someone else.
func findUnlinkedAuth(ctx context.Context, store AuthAccountStore, login string) (*models.AuthAccount, error) {
	auth, err := store.FindByLogin(ctx, login)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}
	if auth.IsLinked() {
		return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
	}
	return auth, nil
}

// SubmitSignup validates req and provisions the accounts. Validation failures are
// returned as an unsuccessful result; duplicates and infrastructure failures as
// errors.
func (s *Service) SubmitSignup(ctx context.Context, req *models.SignupRequest) (*models.SubmitResult, error) {
	req.Normalize()
	if req.ClientIP == "" {
		req.ClientIP = requestcontext.ClientIP(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = requestcontext.UserAgent(ctx)
	}

	if req.Email != "" {
		taken, err := s.emailTaken(ctx, req.Email)
		if err != nil {
			s.metrics.IncSubmission("error")
			return nil, err
		}
		if taken {
			s.metrics.IncSubmission("duplicate")
			s.logAudit(ctx, string(audit.EventDuplicateSignup), "subject", req.Email, "reason", "early_guard")
			return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
		}
	}

	verdict, err := s.pipeline.Validate(ctx, req)
	if err != nil {
		s.metrics.IncSubmission("error")
		return nil, err
	}
	if !verdict.Valid && slices.Contains(verdict.Errors, email.MsgAlreadyRegistered) {
		// Another signup committed between the advisory guard and validation.
		s.metrics.IncSubmission("duplicate")
		s.logAudit(ctx, string(audit.EventDuplicateSignup), "subject", req.Email, "reason", "validation")
		return nil, dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
	}
	if !verdict.Valid {
		s.metrics.IncSubmission("invalid")
		s.logger.InfoContext(ctx, "signup rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error_count", len(verdict.Errors),
		)
		s.logAudit(ctx, string(audit.EventSignupRejected), "subject", req.Email)
		return &models.SubmitResult{Success: false, Errors: verdict.Errors}, nil
	}

	account, err := s.buildAccount(ctx, req, verdict)
	if err != nil {
		s.metrics.IncSubmission("error")
		return nil, err
	}

	res, err := s.provisioner.Provision(ctx, account)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeDuplicateAccount:
			s.metrics.IncSubmission("duplicate")
			s.logAudit(ctx, string(audit.EventDuplicateSignup), "subject", req.Email, "reason", "commit")
		case dErrors.CodeProvisioningFailed:
			s.metrics.IncSubmission("error")
			s.logger.ErrorContext(ctx, "account provisioning failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			s.logAudit(ctx, string(audit.EventProvisioningFailed), "subject", req.Email)
		default:
			s.metrics.IncSubmission("error")
		}
		return nil, err
	}

	s.metrics.IncSubmission("success")
	s.logAudit(ctx, string(audit.EventAccountProvisioned),
		"account_id", res.Primary.ID.String(),
		"subject", res.Primary.Email,
	)
	if res.Linked {
		s.logAudit(ctx, string(audit.EventAuthAccountLinked),
			"account_id", res.Primary.ID.String(),
			"subject", res.Auth.Login,
		)
	}
	return &models.SubmitResult{
		Success:        true,
		RedirectTarget: s.policies.RegistrationPolicy(ctx).RedirectTarget(),
		PrimaryAccount: res.Primary,
		AuthAccount:    res.Auth,
	}, nil
}

// emailTaken is the advisory check across both stores.
func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	taken, err := s.primaries.ExistsByEmail(ctx, email)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}
	if taken {
		return true, nil
	}
	auth, err := s.auths.FindByLogin(ctx, email)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}
	// An unlinked auth account is adopted during provisioning.
	return auth.IsLinked(), nil
}

func (s *Service) buildAccount(ctx context.Context, req *models.SignupRequest, verdict *models.ValidationVerdict) (*models.PrimaryAccount, error) {
	now := requestcontext.Now(ctx)
	account, err := models.NewPrimaryAccount(id.NewPrimaryAccountID(), req.Kind,
		req.FirstName, req.LastName, req.CompanyName, req.Email, now)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, msgRegistration)
	}
	account.PasswordHash = hash
	account.Phone = verdict.PhoneFormatted
	account.PhoneCountryID = verdict.PhoneCountryID
	account.PhoneType = verdict.PhoneType
	if req.Kind == models.KindCompany {
		account.TaxID = req.TaxID
	}
	account.EmailValidated = verdict.EmailValidated
	account.PhoneValidated = verdict.PhoneValidated
	account.PasswordScore = verdict.PasswordScore
	account.RegistrationIP = req.ClientIP
	account.UserAgent = req.UserAgent
	account.DeviceLabel = s.deviceLabel(req.UserAgent)
	if verdict.DynamicValues != nil {
		account.DynamicFields = verdict.DynamicValues
	}
	return account, nil
}
