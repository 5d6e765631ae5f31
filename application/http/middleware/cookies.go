package middleware

import (
	"strings"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/util/uri"
)

// Cookies parses the Cookie header into req.Cookies.
// Values are percent-decoded when possible and kept raw otherwise.
func Cookies() router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		req.Cookies = ParseCookies(req.Header.Get("cookie"))
		return next()
	}
}

// ParseCookies parses a Cookie header value.
// Pairs without a name are skipped and the last duplicate wins.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6265#section-5.4
func ParseCookies(header string) map[string]string {
	cookies := make(map[string]string)

	for _, pair := range strings.Split(header, ";") {
		name, value, _ := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if decoded, err := uri.Unescape(value, false); err == nil {
			value = decoded
		}

		cookies[name] = value
	}

	return cookies
}
