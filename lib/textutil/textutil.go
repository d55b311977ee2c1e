package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeLabel lowercases a label and collapses runs of whitespace, including the exotic
// spaces county pages like to use, into single spaces.
func NormalizeLabel(label string) string {
	return strings.ToLower(CollapseSpace(label))
}

func isPermissiveSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\u2000' && r <= '\u200d') || r == '\u00a0'
}

// CollapseSpace trims text and collapses internal whitespace without changing case.
func CollapseSpace(text string) string {
	text = strings.Map(func(r rune) rune {
		if isPermissiveSpace(r) {
			return ' '
		}
		return r
	}, text)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// ContainsAny reports whether the lowercased text contains any of the (lowercase) terms.
func ContainsAny(text string, terms []string) bool {
	text = strings.ToLower(text)
	for _, m := range terms {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
