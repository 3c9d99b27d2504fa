// Package email validates signup email addresses in fail-fast stages: syntax,
// domain mail reachability, disposable-domain detection and uniqueness.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"onboard/internal/email/disposable"
	"onboard/internal/settings/models"
	pkgemail "onboard/pkg/email"
)

//go:generate mockgen -source=validator.go -destination=mocks/mocks.go -package=mocks Resolver,ExistenceChecker

const (
	MsgInvalidFormat     = "Invalid email address format"
	MsgDomainNotExist    = "Email domain does not exist"
	MsgDomainNoAccept    = "Email domain does not accept emails"
	MsgDomainNoDelivery  = "Email domain does not support email delivery"
	MsgInvalidDomain     = "Invalid email domain"
	MsgDisposable        = "Temporary or disposable email addresses are not allowed"
	MsgAlreadyRegistered = "An account with this email address already exists"
)

var syntaxPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var placeholderDomains = map[string]struct{}{
	"example.com": {},
	"example.org": {},
	"example.net": {},
	"test.com":    {},
	"test.net":    {},
	"test.org":    {},
}

// Resolver looks up DNS records. It returns ErrNXDomain and ErrNoAnswer for those
// outcomes; any other error is treated as transient.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
	LookupA(ctx context.Context, domain string) ([]string, error)
}

// ExistenceChecker reports whether a primary account already uses email.
type ExistenceChecker interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// DetectorSelector picks the disposable detector for the active policy.
type DetectorSelector interface {
	For(policy models.EmailPolicy) disposable.Detector
}

// Observer receives counters for degraded lookups.
type Observer interface {
	IncDNSTransientError()
}

// Result is the outcome of validating one address.
type Result struct {
	Valid    bool     `json:"valid"`
	Messages []string `json:"messages"`
}

func invalid(msg string) Result {
	return Result{Valid: false, Messages: []string{msg}}
}

type Validator struct {
	resolver  Resolver
	detectors DetectorSelector
	existence ExistenceChecker
	logger    *slog.Logger
	observer  Observer
	timeout   time.Duration
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithStageTimeout bounds each DNS stage.
func WithStageTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func New(resolver Resolver, detectors DetectorSelector, existence ExistenceChecker, opts ...Option) *Validator {
	v := &Validator{
		resolver:  resolver,
		detectors: detectors,
		existence: existence,
		logger:    slog.Default(),
		timeout:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks an address that the caller already trimmed and lower-cased.
// Stages 1-3 stop at their first failure. The uniqueness check runs last; a store
// error there is returned rather than tolerated.
func (v *Validator) Validate(ctx context.Context, address string, policy models.EmailPolicy) (Result, error) {
	if policy.SyntaxCheck && !syntaxPattern.MatchString(address) {
		return invalid(MsgInvalidFormat), nil
	}

	domain := pkgemail.Domain(address)

	if policy.MXVerification && domain != "" && v.resolver != nil {
		ascii, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return invalid(MsgInvalidDomain), nil
		}
		if msg := v.checkDomain(ctx, ascii); msg != "" {
			return invalid(msg), nil
		}
	}

	if policy.DisposableCheck && domain != "" && v.detectors != nil {
		if v.isDisposable(ctx, domain, policy) {
			return invalid(MsgDisposable), nil
		}
	}

	messages := []string{}
	if v.existence != nil {
		exists, err := v.existence.ExistsByEmail(ctx, address)
		if err != nil {
			return Result{}, fmt.Errorf("check email uniqueness: %w", err)
		}
		if exists {
			messages = append(messages, MsgAlreadyRegistered)
		}
	}
	return Result{Valid: len(messages) == 0, Messages: messages}, nil
}

func (v *Validator) checkDomain(ctx context.Context, domain string) string {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	hosts, err := v.resolver.LookupMX(ctx, domain)
	switch {
	case err == nil:
		for _, h := range hosts {
			if !isSentinelHost(h) {
				return ""
			}
		}
		return MsgDomainNoAccept
	case errors.Is(err, ErrNXDomain):
		return MsgDomainNotExist
	case errors.Is(err, ErrNoAnswer):
		_, aErr := v.resolver.LookupA(ctx, domain)
		switch {
		case aErr == nil, errors.Is(aErr, ErrNoAnswer):
			return MsgDomainNoDelivery
		case errors.Is(aErr, ErrNXDomain):
			return MsgDomainNotExist
		default:
			err = aErr
		}
	}

	v.logger.WarnContext(ctx, "mx lookup failed, using structural domain check",
		"domain", domain,
		"error", err,
	)
	if v.observer != nil {
		v.observer.IncDNSTransientError()
	}
	return structuralCheck(domain)
}

// isDisposable never fails the signup on detector errors or panics.
func (v *Validator) isDisposable(ctx context.Context, domain string, policy models.EmailPolicy) (blocked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			v.logger.ErrorContext(ctx, "disposable check panicked", "domain", domain, "panic", rec)
			blocked = false
		}
	}()
	blocked, err := v.detectors.For(policy).IsDisposable(ctx, domain)
	if err != nil {
		v.logger.WarnContext(ctx, "disposable check failed, allowing domain",
			"domain", domain,
			"error", err,
		)
		return false
	}
	return blocked
}

func structuralCheck(domain string) string {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 || len(labels[len(labels)-1]) < 2 {
		return MsgInvalidDomain
	}
	if _, ok := placeholderDomains[domain]; ok {
		return MsgInvalidDomain
	}
	return ""
}

func isSentinelHost(host string) bool {
	h := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	switch h {
	case "", "0.0.0.0", "localhost", "127.0.0.1":
		return true
	}
	return strings.HasPrefix(h, "0.")
}
