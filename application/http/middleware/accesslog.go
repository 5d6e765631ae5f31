package middleware

import (
	"log/slog"

	"rawhttp/application/http"
	"rawhttp/application/http/router"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// AccessLog logs every exchange and tags the response with a request id.
// An id sent by the client is kept.
func AccessLog(logger *slog.Logger, clock clock.Clock) router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		id := req.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		start := clock.Now()
		res := next()
		elapsed := clock.Since(start)

		res.Header.Set(requestIDHeader, id)

		attrs := []any{
			slog.String("id", id),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.Uint64("status", uint64(res.Status)),
			slog.Duration("duration", elapsed),
		}
		if addr := c.RemoteAddr(); addr != nil {
			attrs = append(attrs, slog.String("remote", addr.String()))
		}
		logger.Info("Request served", attrs...)

		return res
	}
}
