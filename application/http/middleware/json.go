package middleware

import (
	"bytes"
	"encoding/json"
	"mime"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
)

const jsonMediaType = "application/json"

// JSON decodes application/json bodies into req.JSON.
// A body that isn't valid JSON is kept as its raw text.
func JSON() router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		mediaType, _, err := mime.ParseMediaType(req.Header.Get("content-type"))
		if err != nil || mediaType != jsonMediaType || len(req.Body) == 0 {
			return next()
		}

		dec := json.NewDecoder(bytes.NewReader(req.Body))
		// Numbers keep their text so large integers survive a re-encode.
		dec.UseNumber()

		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			req.JSON = string(req.Body)
			return next()
		}
		req.JSON = v

		return next()
	}
}
