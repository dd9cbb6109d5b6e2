// Package identity normalizes email addresses before any comparison or
// lookup. Both directory sides must pass through the same normalization; a
// single raw email anywhere produces false "missing" results.
package identity

import (
	"net/mail"
	"strings"
)

// Normalize lower-cases and trims raw and reports whether the result is a
// valid address. It is a pure function: invalid input yields ok=false and
// the best-effort normalized string, never an error.
func Normalize(raw string) (email string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return email, false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return email, false
	}
	// ParseAddress accepts display-name forms ("Bob <bob@x.com>"); only the
	// bare address is a usable comparison key.
	if addr.Address != email {
		return email, false
	}
	return email, true
}

// Key returns the comparison key for raw: the normalized address when valid,
// otherwise the lower-cased trimmed string. Invalid emails still need a
// stable key so reconciliation stays a total function over its inputs.
func Key(raw string) string {
	email, _ := Normalize(raw)
	return email
}
