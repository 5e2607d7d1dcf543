// Package keywords holds the canonicalization and validation rules shared
// by every pipeline stage. Two keyword strings are considered equal when
// their canonical forms match.
package keywords

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	MinKeywordChars = 2
	MaxKeywordChars = 100
)

// Canonicalize lower-cases a keyword and collapses all interior whitespace
// runs to single spaces. The canonical form is what dedup and cross-tier
// equality compare on.
func Canonicalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// ValidateSeed rejects seed keywords the pipeline must never spend API
// budget on. Checked before any external call.
func ValidateSeed(s string) error {
	c := Canonicalize(s)
	if len(c) < MinKeywordChars {
		return fmt.Errorf("keyword %q too short (min %d chars)", s, MinKeywordChars)
	}
	if len(c) > MaxKeywordChars {
		return fmt.Errorf("keyword %q too long (max %d chars)", s, MaxKeywordChars)
	}
	hasAlnum := false
	for _, r := range c {
		if unicode.IsControl(r) {
			return fmt.Errorf("keyword %q contains control characters", s)
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasAlnum = true
		}
	}
	if !hasAlnum {
		return fmt.Errorf("keyword %q has no letters or digits", s)
	}
	return nil
}

// CanonicalizeSet canonicalizes every entry and collapses exact duplicates,
// preserving first-seen order.
func CanonicalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		c := Canonicalize(s)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
