package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParsePrimaryAccountID checks that parsing never panics and that any
// accepted value round-trips.
func FuzzParsePrimaryAccountID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParsePrimaryAccountID(input)
		if err == nil {
			roundTrip, err2 := ParsePrimaryAccountID(id.String())
			if err2 != nil {
				t.Errorf("valid id failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed id value")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures both account id types accept and reject the same input.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errPrimary := ParsePrimaryAccountID(input)
		_, errAuth := ParseAuthAccountID(input)
		if (errPrimary == nil) != (errAuth == nil) {
			t.Error("inconsistent parsing across id types")
		}
	})
}
