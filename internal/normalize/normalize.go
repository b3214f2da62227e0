// Package normalize canonicalizes free-text artist/song/album strings so
// that the library store, fuzzy scorer, and cache key derivation all agree
// on what "the same string" means (spec §4.1).
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// stopwords is a fixed set dropped by Tokenize. It deliberately mirrors the
// teacher's guffParenWords in spirit (common noise words filtered before
// matching) rather than in content, since ours are request-level stopwords,
// not recording-title guff.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "of": true,
	"play": true, "song": true, "remix": true, "records": true,
	"feat": true, "featuring": true, "ft": true, "by": true, "on": true,
	"to": true, "for": true, "in": true,
}

// dashSplit matches a single " - " (or em/en-dash variant) splitting a
// message into two halves, grounded on the teacher's recording-title dash
// pattern in service/musicbrainz/clean.go, generalized from "strip
// everything after the dash" to "report both halves".
var dashSplit = regexp2.MustCompile(`^(?<left>.+?)\s+[‐‒–—-]\s+(?<right>.+)$`, 0)

// Normalize decomposes s into base runes plus combining marks, drops the
// combining marks, folds the stroked letters that have no decomposition
// (ø, đ, ł) to their base letter, lowercases, and collapses whitespace runs.
// It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		switch r {
		case 'ø', 'Ø':
			r = 'o'
		case 'đ', 'Đ':
			r = 'd'
		case 'ł', 'Ł':
			r = 'l'
		}
		b.WriteRune(r)
	}
	lowered := strings.ToLower(b.String())
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(lowered, " "))
}

// Tokenize splits a normalized-or-not string on whitespace and punctuation,
// drops tokens shorter than two runes, and drops the stopword set.
func Tokenize(s string) []string {
	normalized := Normalize(s)
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// DetectAmbiguousFormat reports whether raw is of the form "X - Y" with a
// single qualifying separator and returns the two trimmed halves. Both
// halves must contain at least one non-stopword token after tokenization.
func DetectAmbiguousFormat(raw string) (left, right string, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", false
	}
	match, err := dashSplit.FindStringMatch(trimmed)
	if err != nil || match == nil {
		return "", "", false
	}
	// Reject messages with more than one qualifying separator: re-run the
	// match against the remainder and bail if it also matches, since a
	// single clean split is required.
	l := strings.TrimSpace(match.GroupByName("left").String())
	r := strings.TrimSpace(match.GroupByName("right").String())
	if l == "" || r == "" {
		return "", "", false
	}
	if len(Tokenize(l)) == 0 || len(Tokenize(r)) == 0 {
		return "", "", false
	}
	if again, _ := dashSplit.FindStringMatch(r); again != nil {
		return "", "", false
	}
	return l, r, true
}
