package utils

import "strings"

// ExtractDomainFromEmail returns the lowercased domain part of an address,
// tolerating a "Name <user@domain>" form.
func ExtractDomainFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}

	if start := strings.LastIndex(email, "<"); start >= 0 {
		if end := strings.LastIndex(email, ">"); end > start {
			email = email[start+1 : end]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(parts[1]))
}
