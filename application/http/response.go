package http

import (
	"rawhttp/application/http/status"

	"github.com/pkg/errors"
)

type Response struct {
	Status uint
	Header ResponseHeader
	Body   []byte
}

func NewResponse(code uint) *Response {
	return &Response{Status: code}
}

// Text creates a response carrying body as text/plain.
func Text(code uint, body string) *Response {
	return &Response{
		Status: code,
		Header: NewResponseHeader(Field{"Content-Type", "text/plain; charset=utf-8"}),
		Body:   []byte(body),
	}
}

// Bytes creates a response carrying body with the given content type.
func Bytes(code uint, contentType string, body []byte) *Response {
	res := &Response{Status: code, Body: body}
	if contentType != "" {
		res.Header.Set("Content-Type", contentType)
	}
	return res
}

// StatusText creates a response whose body is the reason phrase of code.
func StatusText(code uint) *Response {
	s, _ := status.FromCode(code)
	return Text(code, s.ReasonPhrase)
}

// ErrorResponse converts err into a response.
// A [status.Error] is answered with its status and cause,
// anything else becomes 500 Internal Server Error.
func ErrorResponse(err error) *Response {
	var statusErr status.Error
	if !errors.As(err, &statusErr) {
		statusErr = status.NewError(err, status.InternalServerError)
	}

	body := statusErr.Status.ReasonPhrase
	if statusErr.Cause() != nil {
		body = statusErr.Cause().Error()
	}

	return Text(statusErr.Status.Code, body)
}

func (r *Response) Clone() *Response {
	clone := &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
	}
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return clone
}
