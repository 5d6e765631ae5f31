package middleware

import (
	"testing"

	"rawhttp/application/http"
	"rawhttp/application/http/router"

	"github.com/stretchr/testify/assert"
)

func TestForm(t *testing.T) {
	var got map[string]string
	handler := func(_ *router.HandleContext, req *http.Request) *http.Response {
		got = req.Form
		return http.Text(200, "ok")
	}

	req := newRequest("POST", "/echo", "Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Body = []byte("name=John+Doe&city=New%20York")
	res := serve(Form(), req, handler)
	assert.Equal(t, uint(200), res.Status)
	assert.Equal(t, map[string]string{"name": "John Doe", "city": "New York"}, got)

	got = nil
	req = newRequest("POST", "/echo", "Content-Type", "application/json")
	req.Body = []byte(`{"a":1}`)
	serve(Form(), req, handler)
	assert.Nil(t, got)

	req = newRequest("POST", "/echo", "Content-Type", "application/x-www-form-urlencoded")
	req.Body = []byte("a=%zz")
	res = serve(Form(), req, handler)
	assert.Equal(t, uint(400), res.Status)
}
