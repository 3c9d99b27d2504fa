package domain

// PhoneType is the line classification of a validated phone number.
type PhoneType string

const (
	PhoneTypeMobile            PhoneType = "mobile"
	PhoneTypeFixedLine         PhoneType = "fixed_line"
	PhoneTypeFixedLineOrMobile PhoneType = "fixed_line_or_mobile"
	PhoneTypeUnknown           PhoneType = "unknown"
)

// IsValid reports whether t is one of the known phone types.
func (t PhoneType) IsValid() bool {
	switch t {
	case PhoneTypeMobile, PhoneTypeFixedLine, PhoneTypeFixedLineOrMobile, PhoneTypeUnknown:
		return true
	}
	return false
}

// ParsePhoneType maps stored values back to a PhoneType. Unrecognized values
// become PhoneTypeUnknown.
func ParsePhoneType(s string) PhoneType {
	t := PhoneType(s)
	if t.IsValid() {
		return t
	}
	return PhoneTypeUnknown
}
