package textutil

import "strings"

// Mask hides all but the last four characters of a secret for display.
// Values of four characters or fewer are fully masked.
func Mask(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return "****" + string(r[len(r)-4:])
}
