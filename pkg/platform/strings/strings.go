// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrimLower removes duplicates and empty strings from a slice,
// trimming whitespace and lowercasing each element. Order is preserved.
// Useful for case-insensitive denylists.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// WholeWordTrim shortens s to at most maxLen runes without cutting a word in
// half, appending an ellipsis when anything was removed. The ellipsis counts
// against maxLen. Used to bound user-facing messages for display.
//
// Example:
//
//	WholeWordTrim("the quick brown fox", 10)
//	// Returns: "the quick…"
func WholeWordTrim(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 0 || len(runes) <= maxLen {
		return s
	}

	// One rune is reserved for the ellipsis.
	cut := maxLen - 1
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		// Single word longer than the limit; hard cut.
		cut = maxLen - 1
	}

	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}
