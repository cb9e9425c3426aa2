package aggregate

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// normalizeText baja a minúsculas y descompone/elimina diacríticos, de modo
// que "Mexico" matchee "México" en la búsqueda.
func normalizeText(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
