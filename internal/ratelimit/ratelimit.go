// Package ratelimit throttles the public signup endpoints per client IP with a
// sliding window. Redis holds the shared windows; an in-memory store takes over
// while Redis is failing.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// EndpointClass groups routes that share a limit.
type EndpointClass string

const (
	// ClassValidate covers the per-field AJAX checks fired while a form is typed.
	ClassValidate EndpointClass = "validate"
	// ClassSubmit covers full signup submissions.
	ClassSubmit EndpointClass = "submit"
)

// Limit is the number of requests allowed per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result describes the state of one window after a check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole seconds until the window frees a slot, at least 1.
func (r *Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Store records requests in sliding windows.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*Result, error)
}

// Key builds the window key for ip on class. Delimiters in ip are escaped so a
// crafted value cannot address another bucket.
func Key(class EndpointClass, ip string) string {
	return "rl:signup:" + string(class) + ":" + strings.ReplaceAll(ip, ":", "_")
}
