package middleware

import (
	"mime"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"
	"rawhttp/application/util/uri"

	"github.com/pkg/errors"
)

const formMediaType = "application/x-www-form-urlencoded"

// Form parses application/x-www-form-urlencoded bodies into req.Form.
// A malformed body is answered with 400 Bad Request.
func Form() router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		mediaType, _, err := mime.ParseMediaType(req.Header.Get("content-type"))
		if err != nil || mediaType != formMediaType {
			return next()
		}

		form, err := uri.ParseQuery(string(req.Body))
		if err != nil {
			return http.ErrorResponse(status.NewError(errors.Wrap(err, "parsing form"), status.BadRequest))
		}
		req.Form = form

		return next()
	}
}
