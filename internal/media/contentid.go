package media

import (
	"fmt"
	"strings"

	"github.com/ddanialb/Film/internal/services"
	"github.com/ddanialb/Film/internal/textutil"
)

// NormalizeContentID returns the canonical "tt" + digits form of an IMDb ID.
// A missing prefix is added; anything other than digits after it is rejected
// with services.ErrValidation.
func NormalizeContentID(raw string) (string, error) {
	id := strings.ToLower(textutil.ASCIIDigits(strings.TrimSpace(raw)))
	digits := strings.TrimPrefix(id, "tt")
	if digits == "" {
		return "", services.Wrap(services.ErrValidation, "media", "content id", fmt.Sprintf("invalid content id %q", raw), nil)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", services.Wrap(services.ErrValidation, "media", "content id", fmt.Sprintf("invalid content id %q", raw), nil)
		}
	}
	return "tt" + digits, nil
}
