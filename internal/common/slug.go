package common

import (
	"strings"
	"unicode"
)

// Slugify converts an arbitrary identifier (category name, search query) into
// a stable lowercase key suitable for document addressing. Accented letters
// are folded to their base form so "Eletrônicos" and "eletronicos" collide.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true // Suppress leading dashes

	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		r = foldAccent(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}

// foldAccent maps common accented latin letters to their unaccented base.
// Covers the Portuguese alphabet used by the target site.
func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'â', 'ã', 'ä':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'í', 'ì', 'î', 'ï':
		return 'i'
	case 'ó', 'ò', 'ô', 'õ', 'ö':
		return 'o'
	case 'ú', 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	case 'ñ':
		return 'n'
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return r
	}
	return r
}
