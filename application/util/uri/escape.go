package uri

import (
	"strings"

	"rawhttp/application/util/rule"

	"github.com/pkg/errors"
)

var ErrBadPercentEncoding = errors.New("percent encoding not properly applied")

func unhex(h [2]byte) (c byte) {
	return (hexToNum(h[0]) << 4) | hexToNum(h[1])
}

func hexToNum(h byte) byte {
	switch {
	case '0' <= h && h <= '9':
		return h - '0'
	case 'a' <= h && h <= 'f':
		return h - 'a' + 10
	case 'A' <= h && h <= 'F':
		return h - 'A' + 10
	}
	return 0
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.1
func isPercentEncoded(s string) bool {
	if len(s) != 3 {
		return false
	}

	return s[0] == '%' && rule.IsHexDigit(s[1]) && rule.IsHexDigit(s[2])
}

// Unescape decodes percent-encoded octets in s.
// If plusAsSpace is set, '+' is decoded into a space as form encoding does.
func Unescape(s string, plusAsSpace bool) (string, error) {
	if !strings.ContainsAny(s, "%+") {
		return s, nil
	}

	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case c == '%':
			if idx+2 >= len(s) || !isPercentEncoded(s[idx:idx+3]) {
				bad := s[idx:min(len(s), idx+3)]
				return "", errors.Wrapf(ErrBadPercentEncoding, "%q", bad)
			}
			b.WriteByte(unhex([2]byte{s[idx+1], s[idx+2]}))
			idx += 2
		case c == '+' && plusAsSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}
