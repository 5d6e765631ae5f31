package rule

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.2-2
func IsValidToken(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !httpguts.IsTokenRune(c) {
			return false
		}
	}
	return true
}

// IsValidFieldName reports whether s can be used as a header field name.
func IsValidFieldName(s string) bool { return httpguts.ValidHeaderFieldName(s) }

// IsValidFieldValue reports whether v may appear as a header field value.
func IsValidFieldValue(v string) bool { return httpguts.ValidHeaderFieldValue(v) }

// HasToken reports whether the comma separated list in value contains token,
// compared case-insensitively.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.1
func HasToken(value, token string) bool {
	if value == "" {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{value}, token)
}

// LastToken returns the last element of a comma separated list, lower-cased.
func LastToken(value string) string {
	if idx := strings.LastIndexByte(value, ','); idx >= 0 {
		value = value[idx+1:]
	}
	return strings.ToLower(strings.TrimFunc(value, IsOWS))
}
