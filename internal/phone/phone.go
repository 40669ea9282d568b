// ABOUTME: Recipient normalization into the chat network's canonical address format
// ABOUTME: Pure transform: digit stripping, country-code defaulting, address suffix

package phone

import "strings"

const (
	// DefaultCountryCode is prepended to bare national numbers (10 or 11 digits).
	DefaultCountryCode = "55"

	// AddressSuffix is the network's canonical address suffix.
	AddressSuffix = "@c.us"
)

// Normalize maps a loosely formatted recipient identifier to the canonical
// address the driver expects. Deterministic and idempotent: a canonical
// address passes through unchanged.
//
// Rules: every non-digit is stripped; a leading "0" on a 10- or 11-digit
// number is replaced by the default country code; a bare 10- or 11-digit
// number gets the country code prepended; anything else keeps its digits
// as-is. The address suffix is appended if missing.
func Normalize(recipient string) string {
	var b strings.Builder
	for _, r := range recipient {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	formatted := b.String()

	switch {
	case strings.HasPrefix(formatted, "0") && (len(formatted) == 10 || len(formatted) == 11):
		formatted = DefaultCountryCode + formatted[1:]
	case len(formatted) == 10 || len(formatted) == 11:
		formatted = DefaultCountryCode + formatted
	}

	if !strings.HasSuffix(formatted, AddressSuffix) {
		formatted += AddressSuffix
	}
	return formatted
}
