package textutil

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// digitFolder maps Persian (U+06F0..U+06F9) and Arabic-Indic (U+0660..U+0669)
// digits to their ASCII equivalents and leaves every other rune alone.
var digitFolder = runes.Map(func(r rune) rune {
	switch {
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	default:
		return r
	}
})

// ASCIIDigits rewrites Persian and Arabic-Indic digits in s as ASCII digits.
func ASCIIDigits(s string) string {
	out, _, err := transform.String(digitFolder, s)
	if err != nil {
		return s
	}
	return out
}
