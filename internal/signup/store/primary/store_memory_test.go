package primary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboard/internal/signup/models"
	id "onboard/pkg/domain"
	"onboard/pkg/platform/sentinel"
)

type PrimaryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestPrimaryStoreSuite(t *testing.T) {
	suite.Run(t, new(PrimaryStoreSuite))
}

func (s *PrimaryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *PrimaryStoreSuite) newAccount(email string) *models.PrimaryAccount {
	a, err := models.NewPrimaryAccount(id.NewPrimaryAccountID(), models.KindIndividual, "Sara", "Ali", "", email, time.Now())
	s.Require().NoError(err)
	return a
}

func (s *PrimaryStoreSuite) TestCreateAndFind() {
	a := s.newAccount("sara@mail.sa")
	a.DynamicFields["city"] = "Riyadh"
	s.Require().NoError(s.store.Create(s.ctx, a))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(a.Email, found.Email)

	found, err = s.store.FindByEmail(s.ctx, "SARA@mail.sa")
	s.Require().NoError(err)
	s.Equal(a.ID, found.ID)

	exists, err := s.store.ExistsByEmail(s.ctx, " Sara@Mail.SA ")
	s.Require().NoError(err)
	s.True(exists)

	_, err = s.store.FindByID(s.ctx, id.NewPrimaryAccountID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PrimaryStoreSuite) TestEmailUniqueness() {
	s.Require().NoError(s.store.Create(s.ctx, s.newAccount("sara@mail.sa")))
	err := s.store.Create(s.ctx, s.newAccount("Sara@Mail.sa"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	other := s.newAccount("omar@mail.sa")
	s.Require().NoError(s.store.Create(s.ctx, other))
	other.Email = "sara@mail.sa"
	s.ErrorIs(s.store.Update(s.ctx, other), sentinel.ErrAlreadyUsed)
}

func (s *PrimaryStoreSuite) TestUpdate() {
	a := s.newAccount("sara@mail.sa")
	s.Require().NoError(s.store.Create(s.ctx, a))

	a.Email = "sara.ali@mail.sa"
	authID := id.NewAuthAccountID()
	a.AuthAccountID = &authID
	s.Require().NoError(s.store.Update(s.ctx, a))

	found, err := s.store.FindByEmail(s.ctx, "sara.ali@mail.sa")
	s.Require().NoError(err)
	s.Equal(authID, *found.AuthAccountID)
	exists, _ := s.store.ExistsByEmail(s.ctx, "sara@mail.sa")
	s.False(exists, "old email is released")

	s.ErrorIs(s.store.Update(s.ctx, s.newAccount("ghost@mail.sa")), sentinel.ErrNotFound)
}

func (s *PrimaryStoreSuite) TestReturnedRecordsAreCopies() {
	a := s.newAccount("sara@mail.sa")
	s.Require().NoError(s.store.Create(s.ctx, a))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	found.FirstName = "Changed"
	found.DynamicFields["x"] = 1

	again, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("Sara", again.FirstName)
	s.NotContains(again.DynamicFields, "x")
}

func (s *PrimaryStoreSuite) TestSnapshotRestore() {
	s.Require().NoError(s.store.Create(s.ctx, s.newAccount("sara@mail.sa")))
	snap := s.store.Snapshot()

	s.Require().NoError(s.store.Create(s.ctx, s.newAccount("omar@mail.sa")))
	s.store.Restore(snap)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	exists, _ := s.store.ExistsByEmail(s.ctx, "omar@mail.sa")
	s.False(exists)
}
