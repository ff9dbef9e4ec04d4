// Package iccid canonicalizes operator-supplied SIM identifiers into registry
// serial numbers.
//
// A serial number is the network prefix, a 12-digit body and a fixed suffix.
// Operators usually paste only the body printed on the card, so Normalize
// completes bare bodies and leaves everything else untouched for IsValid to
// judge.
package iccid

import (
	"fmt"
	"regexp"
	"strings"
)

const bodyLength = 12

var bareBody = regexp.MustCompile(`^[0-9]{12}$`)

// Normalizer holds the network-specific prefix and suffix. The zero value is
// not usable; construct with New.
type Normalizer struct {
	prefix string
	suffix string
	valid  *regexp.Regexp
}

// New builds a Normalizer for the given prefix and suffix.
func New(prefix, suffix string) (*Normalizer, error) {
	if prefix == "" {
		return nil, fmt.Errorf("iccid prefix is required")
	}
	pattern := "(?i)^" + regexp.QuoteMeta(prefix) + fmt.Sprintf("[0-9]{%d}", bodyLength) + regexp.QuoteMeta(suffix) + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile iccid pattern: %w", err)
	}
	return &Normalizer{prefix: prefix, suffix: suffix, valid: re}, nil
}

// MustNew is New for package-level fixtures and tests.
func MustNew(prefix, suffix string) *Normalizer {
	n, err := New(prefix, suffix)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize completes a bare 12-digit body into a full serial. Any other input
// is returned trimmed and otherwise unchanged.
func (n *Normalizer) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if bareBody.MatchString(trimmed) {
		return n.prefix + trimmed + n.suffix
	}
	return trimmed
}

// IsValid reports whether serial is a complete serial number. Case is ignored
// for the suffix and surrounding whitespace is trimmed.
func (n *Normalizer) IsValid(serial string) bool {
	return n.valid.MatchString(strings.TrimSpace(serial))
}
