// Package email holds address helpers shared by validation and storage.
package email

import "strings"

// Normalize trims and lower-cases an address; stores and uniqueness checks
// compare normalized forms only.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Domain returns the part after the last '@', or "" when there is none.
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}
