package logger

import "strings"

// RedactEmail masks an email address for safe logging. The first two
// characters of the local part and the full domain survive, which is enough
// to correlate a log line with a ledger row without exposing the address.
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
