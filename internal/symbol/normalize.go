package symbol

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var tagPattern = regexp.MustCompile(`<[^<>]*>`)

// NormalizeKey derives the search key of a display name. Markup and generic
// arguments are removed, HTML entities decoded, scope qualifiers and a trailing
// parameter list dropped, whitespace collapsed, and the result case-folded.
// An empty return value means the name carries nothing searchable.
func NormalizeKey(displayName string) string {
	s := html.UnescapeString(displayName)
	s = stripTags(s)
	if i := strings.IndexByte(s, '('); i > 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "::"); i >= 0 && i+2 < len(s) {
		s = s[i+2:]
	}
	return fold(s)
}

// NormalizeQuery applies the case and whitespace rules of NormalizeKey to a
// user query without removing any of its structure, so partially typed
// names such as "lex_" or "linedit." still match.
func NormalizeQuery(q string) string {
	return fold(q)
}

func fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = norm.NFC.String(s)
	return cases.Fold().String(s)
}

func stripTags(s string) string {
	for {
		stripped := tagPattern.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = stripped
	}
}
