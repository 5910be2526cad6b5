// Package email holds helpers for working with user email addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName derives a readable name from the local part of an address,
// e.g. "jane.doe+blood@example.com" becomes "Jane Doe". Used when a directory
// entry arrives without a name.
func DisplayName(address string) string {
	local := address
	if at := strings.IndexByte(address, '@'); at >= 0 {
		local = address[:at]
	}
	// Drop plus-addressing tags.
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return "Donor"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
