package middleware

import (
	"testing"

	"rawhttp/application/http"

	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	mw := BodyLimit(4)

	req := newRequest("POST", "/echo")
	req.Body = []byte("1234")
	res := serve(mw, req, respond(http.Text(200, "ok")))
	assert.Equal(t, uint(200), res.Status)

	req = newRequest("POST", "/echo")
	req.Body = []byte("12345")
	res = serve(mw, req, respond(http.Text(200, "ok")))
	assert.Equal(t, uint(413), res.Status)
	assert.Equal(t, "Payload Too Large", string(res.Body))
}
