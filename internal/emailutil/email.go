package emailutil

import "strings"

// Normalize lowercases and trims an address taken from a provider profile.
// It reports false for values that are not a single local@domain pair.
func Normalize(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", false
	}
	return email, true
}
