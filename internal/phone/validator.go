// Package phone validates phone numbers against a single selected country.
package phone

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"onboard/internal/countries"
	"onboard/internal/settings/models"
	"onboard/pkg/domain"
)

const (
	MsgSelectCountry   = "Please select a country for your phone number"
	MsgRequired        = "Phone number is required"
	MsgInvalid         = "Invalid phone number"
	MsgUnsupportedType = "Phone number type is not supported"
	MsgMobileOnly      = "Only mobile phone numbers are allowed"
	MsgInvalidLoose    = "Invalid phone number format"
)

var loosePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// CountryLookup resolves a selected country ID.
type CountryLookup interface {
	ByID(id string) (countries.Country, bool)
}

// Result is the outcome of validating one number. Formatted is the international
// display form; E164 is empty in degraded mode.
type Result struct {
	Valid     bool             `json:"valid"`
	Messages  []string         `json:"messages"`
	Formatted string           `json:"formatted,omitempty"`
	E164      string           `json:"e164,omitempty"`
	Type      domain.PhoneType `json:"phone_type"`
}

func invalid(msg string) Result {
	return Result{Messages: []string{msg}, Type: domain.PhoneTypeUnknown}
}

type Validator struct {
	countries CountryLookup
	degraded  bool
	logger    *slog.Logger
}

type Option func(*Validator)

// WithDegradedMode skips the phone-number library and accepts any string matching
// a loose E.164-like pattern. Region and mobile-only rules cannot be enforced.
func WithDegradedMode(enabled bool) Option {
	return func(v *Validator) { v.degraded = enabled }
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func New(lookup CountryLookup, opts ...Option) *Validator {
	v := &Validator{countries: lookup, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks raw against the country identified by countryID.
func (v *Validator) Validate(ctx context.Context, raw, countryID string, policy models.PhonePolicy) Result {
	raw = strings.TrimSpace(raw)
	if !policy.Enabled {
		return Result{Valid: true, Messages: []string{}, Formatted: raw, Type: domain.PhoneTypeUnknown}
	}

	country, ok := v.countries.ByID(countryID)
	if strings.TrimSpace(countryID) == "" || !ok {
		return invalid(MsgSelectCountry)
	}
	if raw == "" {
		return invalid(MsgRequired)
	}
	if v.degraded {
		return looseValidate(raw)
	}
	return v.strictValidate(ctx, raw, country, policy)
}

func (v *Validator) strictValidate(ctx context.Context, raw string, country countries.Country, policy models.PhonePolicy) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			v.logger.ErrorContext(ctx, "phone library failed, using loose pattern",
				"country", country.Code,
				"panic", rec,
			)
			res = looseValidate(raw)
		}
	}()

	num, err := phonenumbers.Parse(raw, country.Code)
	if err != nil {
		return invalid(fmt.Sprintf("Invalid phone number format for %s", country.Name))
	}
	if !phonenumbers.IsValidNumber(num) {
		return invalid(MsgInvalid)
	}
	if region := phonenumbers.GetRegionCodeForNumber(num); region != country.Code {
		return invalid(fmt.Sprintf("Phone number must belong to %s", country.Name))
	}

	var phoneType domain.PhoneType
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE:
		phoneType = domain.PhoneTypeMobile
	case phonenumbers.FIXED_LINE:
		phoneType = domain.PhoneTypeFixedLine
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		phoneType = domain.PhoneTypeFixedLineOrMobile
	default:
		return invalid(MsgUnsupportedType)
	}

	if policy.RequireMobile && phoneType == domain.PhoneTypeFixedLine {
		return invalid(MsgMobileOnly)
	}

	return Result{
		Valid:     true,
		Messages:  []string{},
		Formatted: phonenumbers.Format(num, phonenumbers.INTERNATIONAL),
		E164:      phonenumbers.Format(num, phonenumbers.E164),
		Type:      phoneType,
	}
}

func looseValidate(raw string) Result {
	stripped := strings.NewReplacer(" ", "", "-", "").Replace(raw)
	if !loosePattern.MatchString(stripped) {
		return invalid(MsgInvalidLoose)
	}
	return Result{Valid: true, Messages: []string{}, Formatted: stripped, Type: domain.PhoneTypeUnknown}
}
