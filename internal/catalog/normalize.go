package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

	// foldTransformer strips diacritics: NFD decomposition, drop combining
	// marks, recompose.
	foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// unitSynonyms maps spellings found in supplier price sheets to canonical
// unit codes. Superscript forms show up in sheets exported from ERP systems.
var unitSynonyms = map[string]string{
	"m2": "m2", "m²": "m2", "sqm": "m2", "sq m": "m2",
	"m3": "m3", "m³": "m3", "cbm": "m3",
	"m": "m", "meter": "m", "metre": "m", "lm": "m",
	"kg": "kg", "kgs": "kg", "kilogram": "kg",
	"t": "t", "ton": "t", "tonne": "t",
	"l": "l", "lt": "l", "ltr": "l", "liter": "l", "litre": "l",
	"pc": "pc", "pcs": "pc", "piece": "pc", "pieces": "pc", "kom": "pc", "ea": "pc",
	"bag": "bag", "bags": "bag", "sack": "bag",
	"box": "box", "boxes": "box",
	"roll": "roll", "rolls": "roll",
	"pal": "pallet", "pallet": "pallet", "plt": "pallet",
	"set": "set", "pack": "pack", "pk": "pack",
}

// NormalizeUnit maps a free-form unit spelling to its canonical code.
// Unknown units are folded and returned as-is rather than rejected; the
// importer surfaces them in its report instead.
func NormalizeUnit(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimSuffix(u, ".")
	if folded, err := fold(u); err == nil {
		if canonical, ok := unitSynonyms[folded]; ok {
			return canonical
		}
	}
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}

// NormalizeName produces a match key for a variant name: lowercased,
// diacritics folded, punctuation dropped, whitespace collapsed. Two sheet
// rows naming the same material normalize to the same key.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if folded, err := fold(s); err == nil {
		s = folded
	}
	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func fold(s string) (string, error) {
	out, _, err := transform.String(foldTransformer, s)
	return out, err
}
