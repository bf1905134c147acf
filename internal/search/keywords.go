// Package search provides the keyword filter applied to tweet listings.
// Matching is a case-insensitive substring test using Unicode case folding,
// so "COKE", "Coke" and "coke" all match the keyword "coke".
//
// The package is deliberately small:
//   - No logging in the library (callers decide how/what to log)
//   - Immutable matchers after construction (safe for concurrent use)
//   - Order-preserving filtering
package search

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultKeywords is the keyword set used when none is configured.
var DefaultKeywords = []string{"coke", "coca-cola", "diet cola"}

// Matcher reports whether a text mentions any of its keywords.
type Matcher struct {
	keywords []string // case-folded, non-empty
}

// NewMatcher builds a Matcher over keywords. Blank entries are ignored and
// duplicates collapse; a Matcher without keywords matches nothing.
func NewMatcher(keywords []string) *Matcher {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(keywords))
	m := &Matcher{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = fold.String(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		m.keywords = append(m.keywords, k)
	}
	return m
}

// Keywords returns the normalized keyword list.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Match reports whether text contains at least one keyword, ignoring case.
func (m *Matcher) Match(text string) bool {
	if m == nil || len(m.keywords) == 0 {
		return false
	}
	// cases.Caser is stateful; use a fresh one per call.
	folded := cases.Fold().String(text)
	for _, k := range m.keywords {
		if strings.Contains(folded, k) {
			return true
		}
	}
	return false
}

// Filter returns the items whose text matches m, in their original order.
func Filter[T any](items []T, text func(T) string, m *Matcher) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if m.Match(text(it)) {
			out = append(out, it)
		}
	}
	return out
}
