// Package settings reads signup validation policies from a key-value settings store.
//
// Values are read and parsed on every call so edits take effect on the next request.
// A missing key, an unparseable value or a store failure yields the documented
// default for that key; the latter two are logged at warn level.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"onboard/internal/settings/models"
)

// ParamStore is the settings key-value store.
type ParamStore interface {
	GetParam(ctx context.Context, key, def string) (string, error)
}

// Provider is safe for concurrent use.
type Provider struct {
	store  ParamStore
	logger *slog.Logger
}

type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProvider(store ParamStore, opts ...Option) *Provider {
	p := &Provider{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) PasswordPolicy(ctx context.Context) models.PasswordPolicy {
	return models.PasswordPolicy{
		Enabled:        p.boolParam(ctx, KeyRestrictPassword, DefaultRestrictPassword),
		MinLength:      p.intParam(ctx, KeyPasswordMinLength, DefaultPasswordMinLength),
		RequireNumber:  p.boolParam(ctx, KeyPasswordRequireNum, DefaultRequireNumber),
		RequireUpper:   p.boolParam(ctx, KeyPasswordRequireUpper, false),
		RequireLower:   p.boolParam(ctx, KeyPasswordRequireLower, false),
		RequireSpecial: p.boolParam(ctx, KeyPasswordRequireSpec, false),
	}
}

func (p *Provider) EmailPolicy(ctx context.Context) models.EmailPolicy {
	method := p.stringParam(ctx, KeyTempMailMethod, DefaultTempMailMethod)
	parsed := models.ParseDisposableMethod(strings.ToLower(method))
	if string(parsed) != strings.ToLower(method) {
		p.warnInvalid(ctx, KeyTempMailMethod, method)
	}
	return models.EmailPolicy{
		SyntaxCheck:      p.boolParam(ctx, KeyEmailSyntaxCheck, DefaultEmailChecks),
		MXVerification:   p.boolParam(ctx, KeyEmailMXVerification, DefaultEmailChecks),
		DisposableCheck:  p.boolParam(ctx, KeyEmailDisposable, DefaultEmailChecks),
		DisposableMethod: parsed,
		APIKey:           p.stringParam(ctx, KeyTempMailAPIKey, ""),
	}
}

func (p *Provider) PhonePolicy(ctx context.Context) models.PhonePolicy {
	return models.PhonePolicy{
		Enabled:       p.boolParam(ctx, KeyPhoneValidation, DefaultPhoneValidation),
		RequireMobile: p.boolParam(ctx, KeyPhoneRequireMobile, false),
	}
}

func (p *Provider) RegistrationPolicy(ctx context.Context) models.RegistrationPolicy {
	country := strings.ToUpper(p.stringParam(ctx, KeyDefaultPhoneCountry, DefaultPhoneCountry))
	if country == "" {
		country = DefaultPhoneCountry
	}
	return models.RegistrationPolicy{
		AutoLogin:       p.boolParam(ctx, KeyAutoLogin, DefaultAutoLogin),
		DefaultCountry:  country,
		SuccessRedirect: SuccessRedirect,
		LoginRedirect:   LoginRedirect,
	}
}

// DynamicFields returns the configured dynamic field schema ordered by sequence.
// Entries without a name or with an unknown type are skipped.
func (p *Provider) DynamicFields(ctx context.Context) []models.FieldDescriptor {
	raw := p.stringParam(ctx, KeyDynamicFields, DefaultDynamicFields)
	var fields []models.FieldDescriptor
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		p.warnInvalid(ctx, KeyDynamicFields, raw)
		return nil
	}
	out := fields[:0]
	for _, f := range fields {
		if f.Name == "" || !f.Type.IsKnown() {
			p.logger.WarnContext(ctx, "skipping invalid dynamic field descriptor",
				"name", f.Name,
				"type", string(f.Type),
			)
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (p *Provider) read(ctx context.Context, key, def string) (string, bool) {
	v, err := p.store.GetParam(ctx, key, def)
	if err != nil {
		p.logger.WarnContext(ctx, "settings read failed, using default",
			"key", key,
			"error", err,
		)
		return def, false
	}
	return strings.TrimSpace(v), true
}

func (p *Provider) stringParam(ctx context.Context, key, def string) string {
	v, _ := p.read(ctx, key, def)
	return v
}

func (p *Provider) boolParam(ctx context.Context, key string, def bool) bool {
	v, ok := p.read(ctx, key, strconv.FormatBool(def))
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.warnInvalid(ctx, key, v)
		return def
	}
	return b
}

func (p *Provider) intParam(ctx context.Context, key string, def int) int {
	v, ok := p.read(ctx, key, strconv.Itoa(def))
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.warnInvalid(ctx, key, v)
		return def
	}
	return n
}

func (p *Provider) warnInvalid(ctx context.Context, key, value string) {
	p.logger.WarnContext(ctx, "invalid settings value, using default",
		"key", key,
		"value", value,
	)
}
