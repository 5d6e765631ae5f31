package middleware

import (
	"testing"

	"rawhttp/application/http"
	"rawhttp/application/http/router"

	"github.com/stretchr/testify/assert"
)

func TestParseCookies(t *testing.T) {
	testcases := []struct {
		desc     string
		input    string
		expected map[string]string
	}{
		{desc: "empty", input: "", expected: map[string]string{}},
		{desc: "single", input: "a=1", expected: map[string]string{"a": "1"}},
		{desc: "many", input: "a=1; b=2;c=3", expected: map[string]string{"a": "1", "b": "2", "c": "3"}},
		{desc: "quoted", input: `a="x y"`, expected: map[string]string{"a": "x y"}},
		{desc: "encoded", input: "a=x%20y", expected: map[string]string{"a": "x y"}},
		{desc: "bad encoding kept raw", input: "a=100%", expected: map[string]string{"a": "100%"}},
		{desc: "no name", input: "=1; b=2", expected: map[string]string{"b": "2"}},
		{desc: "no value", input: "flag", expected: map[string]string{"flag": ""}},
		{desc: "last wins", input: "a=1; a=2", expected: map[string]string{"a": "2"}},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseCookies(tc.input))
		})
	}
}

func TestCookies(t *testing.T) {
	req := newRequest("GET", "/", "Cookie", "session=abc; theme=dark")

	var got map[string]string
	serve(Cookies(), req, func(_ *router.HandleContext, req *http.Request) *http.Response {
		got = req.Cookies
		return http.Text(200, "ok")
	})

	assert.Equal(t, map[string]string{"session": "abc", "theme": "dark"}, got)
}
