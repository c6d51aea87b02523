// Package logger holds logging helpers shared across components.
package logger

import "strings"

// RedactEmail masks the local part of an email address for log output,
// keeping at most the first two characters: "reader@example.com" becomes
// "re***@example.com". Anything that is not addr-shaped is fully redacted.
func RedactEmail(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return "[redacted]"
	}
	keep := ""
	if len(local) > 2 {
		keep = local[:2]
	}
	return keep + "***@" + host
}
