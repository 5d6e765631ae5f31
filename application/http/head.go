package http

import (
	"bytes"
	"strings"

	"rawhttp/application/util/rule"
	"rawhttp/application/util/uri"

	"github.com/pkg/errors"
)

// ParseHead parses a complete header block, i.e. the request line and
// the field lines, into a request without a body.
// The terminating empty line may or may not be included in head.
func ParseHead(head []byte) (*Request, error) {
	head = bytes.TrimSuffix(head, rule.HeadTerminator)

	line, rest, _ := bytes.Cut(head, rule.CRLF)

	r := &Request{}
	if err := parseRequestLine(line, r); err != nil {
		return nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}

	if err := ParseFieldLines(rest, &r.Header); err != nil {
		return nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}

	return r, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3
func parseRequestLine(line []byte, r *Request) error {
	parts := bytes.Split(line, []byte{rule.SP})
	if len(parts) != 3 {
		return errors.Errorf("request line is malformed: %q", line)
	}

	method := string(parts[0])
	if !rule.IsValidToken(method) {
		return errors.Errorf("method is not a valid token: %q", method)
	}

	target := string(parts[1])
	if len(target) == 0 {
		return errors.New("request target should not be empty")
	}
	if uri.ContainsCTL(target) {
		return errors.Errorf("request target contains control character: %q", target)
	}

	ver, err := ParseVersion(parts[2])
	if err != nil {
		return errors.Wrap(err, "parsing version")
	}
	if ver[0] != 1 {
		return errors.Errorf("unsupported http version: %s", ver)
	}

	path, rawQuery := uri.SplitTarget(target)
	query, err := uri.ParseQuery(rawQuery)
	if err != nil {
		return errors.Wrap(err, "parsing query")
	}

	r.Method = method
	r.Target = target
	r.Path = path
	r.Query = query
	r.Version = ver

	return nil
}

// ParseFieldLines parses CRLF separated field lines into h.
// Parsing stops at the first empty line.
func ParseFieldLines(block []byte, h *Header) error {
	for len(block) > 0 {
		var line []byte
		line, block, _ = bytes.Cut(block, rule.CRLF)
		if len(line) == 0 {
			break
		}

		name, value, err := parseField(line)
		if err != nil {
			return err
		}
		h.Add(name, value)
	}

	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5
func parseField(line []byte) (name, value string, err error) {
	if line[0] == rule.SP || line[0] == rule.HTAB {
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.2-4
		return "", "", errors.Errorf("obsolete line folding: %q", line)
	}

	rawName, rawValue, found := bytes.Cut(line, []byte{':'})
	if !found {
		return "", "", errors.Errorf("colon seperator not found on header: %q", line)
	}

	// No whitespace is allowed between field name and colon.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-2
	name = string(rawName)
	if !rule.IsValidFieldName(name) {
		return "", "", errors.Errorf("invalid field name: %q", name)
	}

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-5.1-3
	value = strings.TrimFunc(string(rawValue), rule.IsOWS)
	if !rule.IsValidFieldValue(value) {
		return "", "", errors.Errorf("invalid value on field %q", name)
	}

	return name, value, nil
}
