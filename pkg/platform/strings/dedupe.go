// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitLines splits a pasted block on any newline convention, trims each
// line and drops blank ones. Order is preserved; duplicates are kept.
//
// Example:
//
//	SplitLines("123\r\n\n 456 \n")
//	// Returns: []string{"123", "456"}
func SplitLines(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	block = strings.ReplaceAll(block, "\r", "\n")
	return TrimNonEmpty(strings.Split(block, "\n"))
}

// TrimNonEmpty trims each element and drops blank ones, keeping duplicates.
func TrimNonEmpty(values []string) []string {
	if len(values) == 0 {
		return values
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// DedupeBy keeps the first value seen for each key, in order.
//
// Example:
//
//	DedupeBy([]string{"a", "A", "b"}, strings.ToLower)
//	// Returns: []string{"a", "b"}
func DedupeBy(values []string, key func(string) string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		k := key(v)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}
