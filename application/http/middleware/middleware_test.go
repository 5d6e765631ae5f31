package middleware

import (
	"context"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
)

// serve dispatches req through mw into h registered on req's method and path.
func serve(mw router.Middleware, req *http.Request, h router.HandleFunc) *http.Response {
	p := router.NewBuilder().
		Use(mw).
		AddRoute(req.Method, req.Path, h).
		Build(router.Options{})

	return p.Dispatch(router.NewHandleContext(context.Background(), nil, false), req)
}

func newRequest(method, path string, fields ...string) *http.Request {
	req := &http.Request{Method: method, Path: path, Target: path, Version: http.Version11}
	for i := 0; i+1 < len(fields); i += 2 {
		req.Header.Add(fields[i], fields[i+1])
	}
	return req
}

func respond(res *http.Response) router.HandleFunc {
	return func(_ *router.HandleContext, _ *http.Request) *http.Response { return res.Clone() }
}
