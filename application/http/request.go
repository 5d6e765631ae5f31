package http

import (
	"strings"

	"rawhttp/application/util/rule"
)

type Request struct {
	Method string
	// Target is the request-target as received.
	Target string
	// Path is Target without the query string.
	Path    string
	Version Version

	Header Header
	Query  map[string]string

	// Cookies, Form and JSON are filled by middlewares that parse them.
	Cookies map[string]string
	Form    map[string]string
	// JSON holds a decoded application/json body, or the raw body text
	// when it isn't valid JSON.
	JSON any

	// Trailers holds the trailer section of a chunked body, keyed in lower case.
	Trailers Header

	Body []byte
	// Raw is the byte span the request was framed from.
	// For chunked requests it's the rebuilt head followed by the decoded body.
	Raw []byte
}

// WantsClose reports whether the client asked to close the connection
// after this exchange.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-9.3
func (r *Request) WantsClose() bool {
	conn := r.Header.Get("connection")
	if rule.HasToken(conn, "close") {
		return true
	}

	// HTTP/1.0 is persistent only when asked for.
	if !r.Version.AtLeast(Version11) {
		return !rule.HasToken(conn, "keep-alive")
	}

	return false
}

// ExpectsContinue reports whether the client waits for an interim 100 response.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-10.1.1
func (r *Request) ExpectsContinue() bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("expect")), "100-continue")
}

func (r *Request) IsHead() bool { return strings.EqualFold(r.Method, "HEAD") }
