package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// NormalizeText is the identity normalization used by the cache: lower-case,
// drop everything that is not a letter, digit or underscore.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeOptions normalizes every option and sorts the result so that option
// order does not change question identity. Returns nil for no options.
func NormalizeOptions(options []string) []string {
	if len(options) == 0 {
		return nil
	}
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = NormalizeText(o)
	}
	sort.Strings(out)
	return out
}

// SameOptions compares two already normalized option lists.
func SameOptions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var (
	rxEnglishConnector = regexp.MustCompile(`(?i)\b(and|with)\b`)
	cnConnector        = strings.NewReplacer("以及", "和", "与", "和", "及", "和")
)

// normalizeForMatch additionally folds connector words so "A与B", "A和B" and
// "A and B" compare equal.
func normalizeForMatch(s string) string {
	s = rxEnglishConnector.ReplaceAllString(s, "和")
	return cnConnector.Replace(NormalizeText(s))
}
