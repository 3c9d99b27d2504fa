// Package models holds the immutable validation policy values read from settings.
package models

// PasswordPolicy configures password strength rules. When Enabled is false the
// scorer accepts any password.
type PasswordPolicy struct {
	Enabled        bool `json:"enabled"`
	MinLength      int  `json:"min_length"`
	RequireNumber  bool `json:"require_number"`
	RequireUpper   bool `json:"require_uppercase"`
	RequireLower   bool `json:"require_lowercase"`
	RequireSpecial bool `json:"require_special"`
}

// DisposableMethod selects the disposable-domain detection strategy.
type DisposableMethod string

const (
	DisposableLibrary DisposableMethod = "library"
	DisposableAPI     DisposableMethod = "api"
)

// ParseDisposableMethod maps a stored value to a method. Unknown values are library.
func ParseDisposableMethod(s string) DisposableMethod {
	if DisposableMethod(s) == DisposableAPI {
		return DisposableAPI
	}
	return DisposableLibrary
}

// EmailPolicy configures the email validation stages.
type EmailPolicy struct {
	SyntaxCheck      bool             `json:"syntax_check"`
	MXVerification   bool             `json:"mx_verification"`
	DisposableCheck  bool             `json:"disposable_check"`
	DisposableMethod DisposableMethod `json:"disposable_method"`
	APIKey           string           `json:"-"`
}

// PhonePolicy configures phone validation.
type PhonePolicy struct {
	Enabled       bool `json:"enabled"`
	RequireMobile bool `json:"require_mobile"`
}

// RegistrationPolicy configures what happens around a successful signup.
type RegistrationPolicy struct {
	AutoLogin       bool   `json:"auto_login"`
	DefaultCountry  string `json:"default_country"`
	SuccessRedirect string `json:"-"`
	LoginRedirect   string `json:"-"`
}

// RedirectTarget returns where the browser goes after a successful signup.
func (p RegistrationPolicy) RedirectTarget() string {
	if p.AutoLogin {
		return p.LoginRedirect
	}
	return p.SuccessRedirect
}

// FieldType is the storage type of a dynamic signup field.
type FieldType string

const (
	FieldChar      FieldType = "char"
	FieldText      FieldType = "text"
	FieldSelection FieldType = "selection"
	FieldDate      FieldType = "date"
	FieldDatetime  FieldType = "datetime"
	FieldBinary    FieldType = "binary"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldBoolean   FieldType = "boolean"
)

// IsKnown reports whether t is in the coercion table.
func (t FieldType) IsKnown() bool {
	switch t {
	case FieldChar, FieldText, FieldSelection, FieldDate, FieldDatetime, FieldBinary,
		FieldInteger, FieldFloat, FieldBoolean:
		return true
	}
	return false
}

// FieldDescriptor describes one dynamic signup field.
type FieldDescriptor struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Label    string    `json:"label"`
	Sequence int       `json:"sequence"`
}

// DisplayLabel falls back to the field name when no label is configured.
func (f FieldDescriptor) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
