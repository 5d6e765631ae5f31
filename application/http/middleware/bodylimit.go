package middleware

import (
	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"
)

// BodyLimit answers 413 Payload Too Large for bodies longer than max bytes.
func BodyLimit(max int) router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		if len(req.Body) > max {
			return http.StatusText(status.ContentTooLarge.Code)
		}
		return next()
	}
}
