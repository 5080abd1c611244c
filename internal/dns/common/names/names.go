// Package names holds small helpers for presenting decoded query names.
package names

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegistrableDomain returns the eTLD+1 of name, lowercased and without a
// trailing dot. Names the public suffix list cannot handle (single labels,
// garbage from a truncated decode) are returned canonicalised but otherwise
// unchanged.
func RegistrableDomain(name string) string {
	name = Canonical(name)
	if name == "" {
		return ""
	}
	apex, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return apex
}

// Canonical lowercases name, trims surrounding whitespace and removes any
// trailing dots.
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimRight(name, ".")
}
