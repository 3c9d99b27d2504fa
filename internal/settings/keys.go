package settings

// Settings keys, all in the "signup." namespace.
const (
	KeyRestrictPassword     = "signup.restrict_user_password"
	KeyPasswordMinLength    = "signup.password_min_length"
	KeyPasswordRequireNum   = "signup.password_require_number"
	KeyPasswordRequireUpper = "signup.password_require_uppercase"
	KeyPasswordRequireLower = "signup.password_require_lowercase"
	KeyPasswordRequireSpec  = "signup.password_require_special"
	KeyEmailSyntaxCheck     = "signup.email_syntax_check"
	KeyEmailMXVerification  = "signup.email_mx_verification"
	KeyEmailDisposable      = "signup.email_disposable_check"
	KeyTempMailMethod       = "signup.temp_mail_detection_method"
	KeyTempMailAPIKey       = "signup.temp_mail_api_key"
	KeyPhoneValidation      = "signup.phone_validation_enabled"
	KeyPhoneRequireMobile   = "signup.phone_require_mobile"
	KeyAutoLogin            = "signup.registration_auto_login"
	KeyDefaultPhoneCountry  = "signup.default_phone_country"
	KeyDynamicFields        = "signup.dynamic_fields"
)

// Defaults applied when a key is missing or unparseable.
const (
	DefaultRestrictPassword  = true
	DefaultPasswordMinLength = 8
	DefaultRequireNumber     = true
	DefaultEmailChecks       = true
	DefaultTempMailMethod    = "library"
	DefaultPhoneValidation   = true
	DefaultAutoLogin         = true
	DefaultPhoneCountry      = "SA"
	DefaultDynamicFields     = "[]"

	LoginRedirect   = "/web"
	SuccessRedirect = "/signup/success"
)
