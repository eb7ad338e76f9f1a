package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches runs of letters and digits; everything else (spaces,
// punctuation) is a separator.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize splits text on whitespace and punctuation and lower-cases the
// result. No stemming is applied, matching the facet and query tokenizer
// used throughout the cascade: identical surface forms must match, but
// "running" and "run" are treated as distinct tokens.
func Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = strings.ToLower(w)
	}
	return tokens
}

// NormalizeFacet trims, lower-cases, and de-duplicates a set of short
// facet strings (keywords, tags). Order of first occurrence is preserved.
func NormalizeFacet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		norm := strings.ToLower(strings.TrimSpace(v))
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		result = append(result, norm)
	}
	return result
}

// NormalizeUseCases trims and lower-cases an ordered sequence of use-case
// phrases without de-duplicating: order and repetition are meaningful for
// the sequence, only individual phrase normalization applies.
func NormalizeUseCases(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		norm := strings.ToLower(strings.TrimSpace(v))
		if norm == "" {
			continue
		}
		result = append(result, norm)
	}
	return result
}
