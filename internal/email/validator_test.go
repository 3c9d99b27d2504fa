package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboard/internal/email/disposable"
	"onboard/internal/email/mocks"
	"onboard/internal/settings/models"
)

var allChecks = models.EmailPolicy{
	SyntaxCheck:      true,
	MXVerification:   true,
	DisposableCheck:  true,
	DisposableMethod: models.DisposableLibrary,
}

type fixedSelector struct{ d disposable.Detector }

func (s fixedSelector) For(models.EmailPolicy) disposable.Detector { return s.d }

type transientCounter struct{ n int }

func (c *transientCounter) IncDNSTransientError() { c.n++ }

type ValidatorSuite struct {
	suite.Suite
	ctx       context.Context
	resolver  *mocks.MockResolver
	existence *mocks.MockExistenceChecker
	counter   *transientCounter
	validator *Validator
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.resolver = mocks.NewMockResolver(ctrl)
	s.existence = mocks.NewMockExistenceChecker(ctrl)
	s.counter = &transientCounter{}
	s.validator = New(s.resolver,
		fixedSelector{disposable.NewLibraryFromList("mailinator.com")},
		s.existence,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(s.counter),
	)
}

func (s *ValidatorSuite) TestSyntaxFailureStopsAllStages() {
	for _, addr := range []string{"plainaddress", "a@b", "a@@b.com", "jane@example.c", "jane doe@example.com", ""} {
		s.Run(addr, func() {
			res, err := s.validator.Validate(s.ctx, addr, allChecks)
			s.Require().NoError(err)
			s.False(res.Valid)
			s.Equal([]string{MsgInvalidFormat}, res.Messages)
		})
	}
}

func (s *ValidatorSuite) TestValidAddress() {
	s.resolver.EXPECT().LookupMX(gomock.Any(), "gmail.com").Return([]string{"gmail-smtp-in.l.google.com"}, nil)
	s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@gmail.com").Return(false, nil)

	res, err := s.validator.Validate(s.ctx, "jane@gmail.com", allChecks)
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Empty(res.Messages)
}

func (s *ValidatorSuite) TestMXOutcomes() {
	tests := []struct {
		name  string
		setup func()
		want  string
	}{
		{
			name: "only sentinel exchanges",
			setup: func() {
				s.resolver.EXPECT().LookupMX(gomock.Any(), "parked.io").Return([]string{"0.0.0.0", "localhost", "0.mx.parked.io", ""}, nil)
			},
			want: MsgDomainNoAccept,
		},
		{
			name: "nxdomain",
			setup: func() {
				s.resolver.EXPECT().LookupMX(gomock.Any(), "parked.io").Return(nil, ErrNXDomain)
			},
			want: MsgDomainNotExist,
		},
		{
			name: "no mx and a record resolves",
			setup: func() {
				s.resolver.EXPECT().LookupMX(gomock.Any(), "parked.io").Return(nil, ErrNoAnswer)
				s.resolver.EXPECT().LookupA(gomock.Any(), "parked.io").Return([]string{"192.0.2.1"}, nil)
			},
			want: MsgDomainNoDelivery,
		},
		{
			name: "no mx and a lookup nxdomain",
			setup: func() {
				s.resolver.EXPECT().LookupMX(gomock.Any(), "parked.io").Return(nil, ErrNoAnswer)
				s.resolver.EXPECT().LookupA(gomock.Any(), "parked.io").Return(nil, ErrNXDomain)
			},
			want: MsgDomainNotExist,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			tt.setup()
			res, err := s.validator.Validate(s.ctx, "jane@parked.io", allChecks)
			s.Require().NoError(err)
			s.Equal([]string{tt.want}, res.Messages)
		})
	}
}

func (s *ValidatorSuite) TestTransientDNSErrorUsesStructuralFallback() {
	timeout := errors.New("i/o timeout")

	s.Run("plausible domain passes", func() {
		s.resolver.EXPECT().LookupMX(gomock.Any(), "company.co").Return(nil, timeout)
		s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@company.co").Return(false, nil)

		res, err := s.validator.Validate(s.ctx, "jane@company.co", allChecks)
		s.Require().NoError(err)
		s.True(res.Valid)
	})

	s.Run("placeholder domain rejected", func() {
		s.resolver.EXPECT().LookupMX(gomock.Any(), "example.com").Return(nil, timeout)

		res, err := s.validator.Validate(s.ctx, "jane@example.com", allChecks)
		s.Require().NoError(err)
		s.Equal([]string{MsgInvalidDomain}, res.Messages)
	})

	s.Run("transient a lookup after empty mx", func() {
		s.resolver.EXPECT().LookupMX(gomock.Any(), "company.co").Return(nil, ErrNoAnswer)
		s.resolver.EXPECT().LookupA(gomock.Any(), "company.co").Return(nil, timeout)
		s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@company.co").Return(false, nil)

		res, err := s.validator.Validate(s.ctx, "jane@company.co", allChecks)
		s.Require().NoError(err)
		s.True(res.Valid)
	})

	s.Equal(3, s.counter.n)
}

func (s *ValidatorSuite) TestInternationalDomainConvertedBeforeLookup() {
	policy := allChecks
	policy.SyntaxCheck = false
	s.resolver.EXPECT().LookupMX(gomock.Any(), "xn--bcher-kva.de").Return([]string{"mx.xn--bcher-kva.de"}, nil)
	s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@bücher.de").Return(false, nil)

	res, err := s.validator.Validate(s.ctx, "jane@bücher.de", policy)
	s.Require().NoError(err)
	s.True(res.Valid)
}

func (s *ValidatorSuite) TestDisposableDomainRejected() {
	s.resolver.EXPECT().LookupMX(gomock.Any(), "mailinator.com").Return([]string{"mail.mailinator.com"}, nil)

	res, err := s.validator.Validate(s.ctx, "jane@mailinator.com", allChecks)
	s.Require().NoError(err)
	s.Equal([]string{MsgDisposable}, res.Messages)
}

func (s *ValidatorSuite) TestDisposableFailuresNeverBlock() {
	policy := allChecks
	policy.MXVerification = false

	for name, d := range map[string]disposable.Detector{
		"error": disposable.DetectorFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("boom")
		}),
		"panic": disposable.DetectorFunc(func(context.Context, string) (bool, error) {
			panic("detector bug")
		}),
	} {
		s.Run(name, func() {
			v := New(nil, fixedSelector{d}, s.existence, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@gmail.com").Return(false, nil)

			res, err := v.Validate(s.ctx, "jane@gmail.com", policy)
			s.Require().NoError(err)
			s.True(res.Valid)
		})
	}
}

func (s *ValidatorSuite) TestUniqueness() {
	policy := models.EmailPolicy{SyntaxCheck: true}

	s.Run("existing account", func() {
		s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@gmail.com").Return(true, nil)
		res, err := s.validator.Validate(s.ctx, "jane@gmail.com", policy)
		s.Require().NoError(err)
		s.False(res.Valid)
		s.Equal([]string{MsgAlreadyRegistered}, res.Messages)
	})

	s.Run("store error is returned", func() {
		s.existence.EXPECT().ExistsByEmail(gomock.Any(), "jane@gmail.com").Return(false, errors.New("db down"))
		_, err := s.validator.Validate(s.ctx, "jane@gmail.com", policy)
		s.Error(err)
	})
}

func (s *ValidatorSuite) TestDisabledStagesAreSkipped() {
	s.existence.EXPECT().ExistsByEmail(gomock.Any(), "not-an-email").Return(false, nil)
	res, err := s.validator.Validate(s.ctx, "not-an-email", models.EmailPolicy{})
	s.Require().NoError(err)
	s.True(res.Valid)
}
