package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext is the part of the scenario context the rate limit steps use.
type TestContext interface {
	POST(path string, body any) error
	SetClientIP(ip string)
	GetLastResponseStatus() int
	GetLastResponseHeader() http.Header
}

// RegisterSteps registers per-IP throttling steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}
	ctx.Step(`^requests come from IP "([^"]*)"$`, steps.fromIP)
	ctx.Step(`^I POST an empty signup form (\d+) times$`, steps.postEmptyForms)
	ctx.Step(`^at least one response should be rate limited$`, steps.someRateLimited)
	ctx.Step(`^the response should carry a Retry-After header$`, steps.retryAfterPresent)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
}

func (s *ratelimitSteps) fromIP(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

func (s *ratelimitSteps) postEmptyForms(ctx context.Context, n int) error {
	s.statuses = s.statuses[:0]
	for i := 0; i < n; i++ {
		if err := s.tc.POST("/signup", map[string]any{}); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
		if s.tc.GetLastResponseStatus() == http.StatusTooManyRequests {
			return nil
		}
	}
	return nil
}

func (s *ratelimitSteps) someRateLimited(ctx context.Context) error {
	for _, status := range s.statuses {
		if status == http.StatusTooManyRequests {
			return nil
		}
	}
	return fmt.Errorf("no request was rate limited: %v", s.statuses)
}

func (s *ratelimitSteps) retryAfterPresent(ctx context.Context) error {
	if s.tc.GetLastResponseHeader().Get("Retry-After") == "" {
		return fmt.Errorf("Retry-After header missing")
	}
	return nil
}
