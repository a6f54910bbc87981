// Package codes normalizes categorical location codes (FIPS, zone ids) into a
// canonical fixed-width join key.
package codes

import (
	"fmt"
	"strings"

	"golang.org/x/text/width"
)

// absent lists spellings that mean "no code" in exported tables.
var absent = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NAN":  true,
	"NULL": true,
	"NONE": true,
}

// Normalize returns the canonical form of a location code, or "" if the
// value does not carry a code. Numeric codes are zero-padded to width;
// width <= 0 disables padding.
func Normalize(code string, width int) string {
	code = strings.TrimSpace(foldWidth(code))
	if absent[strings.ToUpper(code)] {
		return ""
	}

	// Codes round-tripped through a float column come back as "36061.0".
	if i := strings.IndexByte(code, '.'); i > 0 && isDigits(code[:i]) && isZeros(code[i+1:]) {
		code = code[:i]
	}

	if width > 0 && isDigits(code) {
		for len(code) < width {
			code = "0" + code
		}
	}
	return code
}

// FormatNumeric formats an integer code with zero-padding to the given width.
func FormatNumeric(code int, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}

// foldWidth maps full-width digits and letters to their ASCII forms.
func foldWidth(s string) string {
	return width.Narrow.String(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isZeros(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' {
			return false
		}
	}
	return true
}
