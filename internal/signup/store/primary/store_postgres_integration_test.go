//go:build integration

package primary_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboard/internal/signup/models"
	"onboard/internal/signup/store/primary"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
	"onboard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *primary.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = primary.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func newAccount(email string) *models.PrimaryAccount {
	a, err := models.NewPrimaryAccount(id.NewPrimaryAccountID(), models.KindIndividual, "Sara", "Ali", "", email,
		time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		panic(err)
	}
	a.PasswordHash = "hash"
	return a
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	a := newAccount("sara@mail.sa")
	a.Phone = "+966 51 234 5678"
	a.PhoneType = id.PhoneTypeMobile
	a.DynamicFields["city"] = "Riyadh"
	s.Require().NoError(s.store.Create(ctx, a))

	found, err := s.store.FindByEmail(ctx, "SARA@MAIL.SA")
	s.Require().NoError(err)
	s.Equal(a.ID, found.ID)
	s.Equal(id.PhoneTypeMobile, found.PhoneType)
	s.Equal("Riyadh", found.DynamicFields["city"])
	s.Nil(found.AuthAccountID)
	s.Equal("hash", found.PasswordHash)
}

// TestConcurrentSameEmail verifies the unique index lets exactly one insert win.
func (s *PostgresStoreSuite) TestConcurrentSameEmail() {
	ctx := context.Background()
	email := "race-" + uuid.NewString() + "@mail.sa"
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newAccount(email))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	err := s.store.Update(context.Background(), newAccount("ghost@mail.sa"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
