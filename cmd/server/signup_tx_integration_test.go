//go:build integration

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboard/internal/signup/models"
	"onboard/internal/signup/service"
	"onboard/internal/signup/store/authaccount"
	"onboard/internal/signup/store/primary"
	id "onboard/pkg/domain"
	dErrors "onboard/pkg/domain-errors"
	"onboard/pkg/testutil/containers"
)

// authStoreHook lets a test replace Create on the real postgres auth store.
type authStoreHook struct {
	*authaccount.PostgresStore
	create func(ctx context.Context, account *models.AuthAccount) error
}

func (h *authStoreHook) Create(ctx context.Context, account *models.AuthAccount) error {
	return h.create(ctx, account)
}

type SignupTxSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	primaries *primary.PostgresStore
	auths     *authaccount.PostgresStore
}

func TestSignupTxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SignupTxSuite))
}

func (s *SignupTxSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.primaries = primary.NewPostgres(s.postgres.DB)
	s.auths = authaccount.NewPostgres(s.postgres.DB)
}

func (s *SignupTxSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *SignupTxSuite) provisioner(auths service.AuthAccountStore) *service.Provisioner {
	return service.NewProvisioner(newSignupPostgresTx(s.postgres.DB, s.primaries, auths, time.Second), nil, nil)
}

func (s *SignupTxSuite) account(email string) *models.PrimaryAccount {
	a, err := models.NewPrimaryAccount(id.NewPrimaryAccountID(), models.KindIndividual, "Sara", "Ali", "", email,
		time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	a.PasswordHash = "hash"
	return a
}

func (s *SignupTxSuite) rows(table string) int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n))
	return n
}

func (s *SignupTxSuite) TestConcurrentSameEmailProvisionsOnce() {
	prov := s.provisioner(s.auths)
	const racers = 6

	accounts := make([]*models.PrimaryAccount, racers)
	for i := range accounts {
		accounts[i] = s.account("race@mail.sa")
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = prov.Provision(context.Background(), accounts[i])
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeDuplicateAccount):
			dup++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(racers-1, dup)
	s.Equal(1, s.rows("primary_accounts"))
	s.Equal(1, s.rows("auth_accounts"))
}

func (s *SignupTxSuite) TestAuthWriteFailureRollsBackPrimary() {
	failing := &authStoreHook{
		PostgresStore: s.auths,
		create: func(context.Context, *models.AuthAccount) error {
			return errors.New("identity backend unavailable")
		},
	}

	_, err := s.provisioner(failing).Provision(context.Background(), s.account("sara@mail.sa"))
	s.True(dErrors.HasCode(err, dErrors.CodeProvisioningFailed), "got %v", err)
	s.Zero(s.rows("primary_accounts"))
	s.Zero(s.rows("auth_accounts"))
}

func (s *SignupTxSuite) TestAdoptsExistingUnlinkedLogin() {
	ctx := context.Background()
	existing, err := models.NewAuthAccount(id.NewAuthAccountID(),
		models.AuthFields{Login: "sara@mail.sa", Email: "sara@mail.sa"}, "old-hash", time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.auths.Create(ctx, existing))

	res, err := s.provisioner(s.auths).Provision(ctx, s.account("sara@mail.sa"))
	s.Require().NoError(err)
	s.True(res.Linked)
	s.Equal(existing.ID, res.Auth.ID)

	stored, err := s.primaries.FindByID(ctx, res.Primary.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.AuthAccountID)
	s.Equal(existing.ID, *stored.AuthAccountID)
	linked, err := s.auths.FindByLogin(ctx, "sara@mail.sa")
	s.Require().NoError(err)
	s.True(linked.LinkedTo(res.Primary.ID))
	s.Equal(1, s.rows("auth_accounts"))
}

func (s *SignupTxSuite) TestLoginTakenDuringInsertIsAdoptedThroughSavepoint() {
	var competitor *models.AuthAccount
	racing := &authStoreHook{PostgresStore: s.auths}
	racing.create = func(ctx context.Context, account *models.AuthAccount) error {
		// Another writer commits the same login just before our insert.
		other, err := models.NewAuthAccount(id.NewAuthAccountID(),
			models.AuthFields{Login: account.Login, Email: account.Email}, "other-hash", time.Now().UTC())
		if err != nil {
			return err
		}
		if err := s.auths.Create(context.Background(), other); err != nil {
			return err
		}
		competitor = other
		return s.auths.Create(ctx, account)
	}

	res, err := s.provisioner(racing).Provision(context.Background(), s.account("sara@mail.sa"))
	s.Require().NoError(err)
	s.Require().NotNil(competitor)
	s.True(res.Linked)
	s.Equal(competitor.ID, res.Auth.ID)
	s.Equal(1, s.rows("primary_accounts"))
	s.Equal(1, s.rows("auth_accounts"))

	linked, err := s.auths.FindByLogin(context.Background(), "sara@mail.sa")
	s.Require().NoError(err)
	s.True(linked.LinkedTo(res.Primary.ID))
}

func (s *SignupTxSuite) TestLoginTakenAndLinkedDuringInsertIsDuplicate() {
	ctx := context.Background()
	owner := s.account("owner@mail.sa")
	s.Require().NoError(s.primaries.Create(ctx, owner))

	racing := &authStoreHook{PostgresStore: s.auths}
	racing.create = func(txCtx context.Context, account *models.AuthAccount) error {
		other, err := models.NewAuthAccount(id.NewAuthAccountID(),
			models.AuthFields{Login: account.Login, Email: account.Email}, "other-hash", time.Now().UTC())
		if err != nil {
			return err
		}
		if err := other.LinkPrimaryAccount(owner.ID, time.Now().UTC()); err != nil {
			return err
		}
		if err := s.auths.Create(ctx, other); err != nil {
			return err
		}
		return s.auths.Create(txCtx, account)
	}

	_, err := s.provisioner(racing).Provision(ctx, s.account("sara@mail.sa"))
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateAccount), "got %v", err)
	s.Equal(1, s.rows("primary_accounts"), "only the owner remains")
}

func (s *SignupTxSuite) TestSavepointKeepsTransactionUsable() {
	ctx := context.Background()
	tx := newSignupPostgresTx(s.postgres.DB, s.primaries, s.auths, time.Second)
	s.Require().NoError(s.primaries.Create(ctx, s.account("taken@mail.sa")))

	err := tx.RunInTx(ctx, func(ctx context.Context, stores service.TxStores) error {
		dupErr := stores.Savepoint(ctx, func(ctx context.Context) error {
			return stores.Primary.Create(ctx, s.account("taken@mail.sa"))
		})
		s.Error(dupErr)
		return stores.Primary.Create(ctx, s.account("fresh@mail.sa"))
	})
	s.Require().NoError(err)
	s.Equal(2, s.rows("primary_accounts"))
}

func (s *SignupTxSuite) TestCallbackErrorRollsBack() {
	tx := newSignupPostgresTx(s.postgres.DB, s.primaries, s.auths, time.Second)
	boom := errors.New("boom")

	err := tx.RunInTx(context.Background(), func(ctx context.Context, stores service.TxStores) error {
		s.Require().NoError(stores.Primary.Create(ctx, s.account("sara@mail.sa")))
		return boom
	})
	s.ErrorIs(err, boom)
	s.Zero(s.rows("primary_accounts"))
}

func (s *SignupTxSuite) TestTimeouts() {
	tx := newSignupPostgresTx(s.postgres.DB, s.primaries, s.auths, time.Second)

	s.Run("cancelled before start", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := tx.RunInTx(ctx, func(context.Context, service.TxStores) error {
			s.Fail("callback must not run")
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	s.Run("deadline passes before commit", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := tx.RunInTx(ctx, func(ctx context.Context, stores service.TxStores) error {
			if err := stores.Primary.Create(ctx, s.account("slow@mail.sa")); err != nil {
				return err
			}
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout), "got %v", err)
		s.Zero(s.rows("primary_accounts"))
	})
}
