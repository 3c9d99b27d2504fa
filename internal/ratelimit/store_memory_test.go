package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 5
	testWindow = time.Minute
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	clock time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore()
	s.store.now = func() time.Time { return s.clock }
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestAllowUpToLimit() {
	var res *Result
	var err error
	for i := range testLimit {
		res, err = s.store.Allow(s.ctx, "k", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(testLimit-i-1, res.Remaining)
	}
	s.Equal(s.clock.Add(testWindow), res.ResetAt)

	res, err = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(0, res.Remaining)
	s.Equal(testLimit, res.Limit)
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.clock = s.clock.Add(30 * time.Second)
	res, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(s.clock.Add(30*time.Second), res.ResetAt)

	s.clock = s.clock.Add(31 * time.Second)
	res, err = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, Key(ClassSubmit, "10.0.0.1"), testLimit, testWindow)
		s.Require().NoError(err)
	}
	res, err := s.store.Allow(s.ctx, Key(ClassSubmit, "10.0.0.2"), testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
	res, err = s.store.Allow(s.ctx, Key(ClassValidate, "10.0.0.1"), testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryStoreSuite) TestCostLargerThanRemaining() {
	_, err := s.store.AllowN(s.ctx, "k", 3, testLimit, testWindow)
	s.Require().NoError(err)
	res, err := s.store.AllowN(s.ctx, "k", 3, testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	res, err = s.store.AllowN(s.ctx, "k", 2, testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal(0, res.Remaining)
}

func (s *InMemoryStoreSuite) TestSweepDropsIdleWindows() {
	_, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.clock = s.clock.Add(2 * testWindow)
	s.store.Sweep()
	s.Empty(s.store.windows)
}

func (s *InMemoryStoreSuite) TestConcurrentRequestsNeverExceedLimit() {
	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(testLimit), allowed.Load())
}

func TestKeyEscapesDelimiters(t *testing.T) {
	if got := Key(ClassSubmit, "2001:db8::1"); got != "rl:signup:submit:2001_db8__1" {
		t.Fatalf("unexpected key %q", got)
	}
}
