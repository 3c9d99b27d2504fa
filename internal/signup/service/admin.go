package service

import (
	"context"
	"errors"
	"strings"

	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	pkgemail "onboard/pkg/email"
	"onboard/pkg/platform/audit"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/requestcontext"
)

// UpdatePrimaryAccount applies an admin edit and syncs the projected fields into
// the linked auth account in the same transaction. A changed phone number is
// re-validated first. Auth accounts never write back.
func (s *Service) UpdatePrimaryAccount(ctx context.Context, accountID id.PrimaryAccountID, req *models.UpdatePrimaryAccountRequest) (*models.PrimaryAccount, error) {
	if req == nil || req.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no fields to update")
	}
	now := requestcontext.Now(ctx)

	var updated *models.PrimaryAccount
	var synced bool
	err := s.provisioner.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		account, err := stores.Primary.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
		}

		phoneChanged := req.PhoneChanged(account)
		req.ApplyTo(account)
		if req.Email != nil {
			account.Email = pkgemail.Normalize(*req.Email)
		}
		if account.Kind != models.KindCompany {
			account.TaxID = ""
		}
		if phoneChanged {
			if err := s.revalidatePhone(ctx, account, req); err != nil {
				return err
			}
		}
		if err := account.CheckInvariants(); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		account.UpdatedAt = now

		if err := stores.Primary.Update(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeDuplicateAccount, msgDuplicateAccount)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
		}

		if account.IsLinked() {
			auth, err := stores.Auth.FindByID(ctx, *account.AuthAccountID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load auth account")
			}
			auth.Apply(models.ToAuthFields(account), now)
			if err := stores.Auth.Update(ctx, auth); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return dErrors.New(dErrors.CodeDuplicateAccount, "login already in use")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to sync auth account")
			}
			synced = true
		}
		updated = account
		return nil
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			s.logAudit(ctx, string(audit.EventAuthSyncFailed), "account_id", accountID.String())
		}
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventAccountUpdated),
		"account_id", updated.ID.String(),
		"subject", updated.Email,
	)
	if synced {
		s.logger.InfoContext(ctx, "auth account synced",
			"request_id", requestcontext.RequestID(ctx),
			"account_id", updated.ID.String(),
		)
	}
	return updated, nil
}

func (s *Service) revalidatePhone(ctx context.Context, account *models.PrimaryAccount, req *models.UpdatePrimaryAccountRequest) error {
	raw := account.Phone
	if req.Phone != nil {
		raw = strings.TrimSpace(*req.Phone)
	}
	countryID := account.PhoneCountryID
	if req.PhoneCountryID != nil {
		countryID = strings.ToUpper(strings.TrimSpace(*req.PhoneCountryID))
	}
	if raw == "" {
		return dErrors.New(dErrors.CodeValidation, "Phone number is required")
	}
	res := s.phone.Validate(ctx, raw, countryID, s.policies.PhonePolicy(ctx))
	if !res.Valid {
		return dErrors.New(dErrors.CodeValidation, strings.Join(res.Messages, "; "))
	}
	account.Phone = res.Formatted
	account.PhoneCountryID = countryID
	account.PhoneType = res.Type
	account.PhoneValidated = true
	return nil
}

// EnsureAuthAccount gives a primary account without a login its auth account,
// adopting an unlinked one with the same login when it exists. An account that
// is already linked is returned as is.
func (s *Service) EnsureAuthAccount(ctx context.Context, accountID id.PrimaryAccountID) (*models.AuthAccount, error) {
	now := requestcontext.Now(ctx)

	var result *models.AuthAccount
	var created, adopted bool
	err := s.provisioner.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		account, err := stores.Primary.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "account not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
		}
		if account.IsLinked() {
			auth, err := stores.Auth.FindByID(ctx, *account.AuthAccountID)
			if err == nil {
				result = auth
				return nil
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load auth account")
			}
			// Dangling reference: fall through and provision a fresh one.
			account.AuthAccountID = nil
		}

		fields := models.ToAuthFields(account)
		auth, err := findUnlinkedAuth(ctx, stores.Auth, account.Email)
		if err != nil {
			return err
		}
		if auth != nil {
			auth.Apply(fields, now)
			adopted = true
		} else {
			auth, err = models.NewAuthAccount(id.NewAuthAccountID(), fields, account.PasswordHash, now)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to build auth account")
			}
			created = true
		}
		if err := auth.LinkPrimaryAccount(account.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, "auth account is linked elsewhere")
		}
		if created {
			err = stores.Auth.Create(ctx, auth)
		} else {
			err = stores.Auth.Update(ctx, auth)
		}
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "login already in use")
			}
			return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to write auth account")
		}
		if err := account.LinkAuthAccount(auth.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link primary account")
		}
		if err := stores.Primary.Update(ctx, account); err != nil {
			return dErrors.Wrap(err, dErrors.CodeProvisioningFailed, "failed to link primary account")
		}
		result = auth
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created || adopted {
		s.logAudit(ctx, string(audit.EventAuthAccountEnsured),
			"account_id", accountID.String(),
			"subject", result.Login,
		)
		if adopted {
			s.metrics.IncAuthAccountsLinked()
		}
	}
	return result, nil
}
