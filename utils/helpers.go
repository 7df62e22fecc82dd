package utils

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func ValidateEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

// MaskEmail hides the middle of the local part so addresses and SMTP
// usernames can go into logs. Values without an @ are masked whole.
func MaskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if len(local) <= 2 {
		if !found {
			return "***"
		}
		return local + "@" + domain
	}

	masked := local[:1] + "***" + local[len(local)-1:]
	if !found {
		return masked
	}
	return masked + "@" + domain
}
