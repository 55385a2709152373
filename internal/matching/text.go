package matching

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nonWord is a single rune outside Unicode letters, digits and underscore.
// Go's \b only knows ASCII word characters, which breaks numbers in other scripts.
const nonWord = `[^\p{L}\p{N}_]`

// punctuation matches everything that is neither a word character nor whitespace.
var punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeText lowercases, trims and folds diacritics.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(RemoveDiacritics(s)))
}

// StripPunctuation removes punctuation, keeping letters, digits, underscores and whitespace.
func StripPunctuation(s string) string {
	return punctuation.ReplaceAllString(s, "")
}

// isNumeric reports whether s is a non-empty run of digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// textQuery is a search string prepared once per evaluation.
type textQuery struct {
	lower   string
	clean   string
	numeric *regexp.Regexp
}

func newTextQuery(search string) textQuery {
	q := textQuery{lower: NormalizeText(search)}
	q.clean = strings.TrimSpace(StripPunctuation(q.lower))
	if isNumeric(q.clean) {
		q.numeric = regexp.MustCompile(`(?:^|` + nonWord + `)` + regexp.QuoteMeta(q.clean) + `(?:$|` + nonWord + `)`)
	}
	return q
}

// matches checks one detected fragment.
// Numbers must stand alone, so "7" finds "#7 Home" but not "47 Away".
// Other strings are plain substrings, so "smith" also finds "Smithson".
func (q textQuery) matches(detected string) bool {
	lower := NormalizeText(detected)
	clean := StripPunctuation(lower)

	if q.numeric != nil {
		return q.numeric.MatchString(clean)
	}
	if q.lower != "" && strings.Contains(lower, q.lower) {
		return true
	}
	return q.clean != "" && strings.Contains(clean, q.clean)
}

// MatchText reports whether search occurs in any of the detected fragments.
func MatchText(search string, detected []string) bool {
	q := newTextQuery(search)
	if q.clean == "" {
		return false
	}
	for _, d := range detected {
		if q.matches(d) {
			return true
		}
	}
	return false
}
