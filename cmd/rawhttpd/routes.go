package main

import (
	"encoding/json"
	"log/slog"

	"rawhttp/application/http"
	"rawhttp/application/http/middleware"
	"rawhttp/application/http/router"

	"github.com/benbjohnson/clock"
)

// newPipeline wires the middlewares and the demo routes.
// The returned pipeline is shared by the plain and the TLS listener.
func newPipeline(cfg config, logger *slog.Logger, clock clock.Clock) *router.Pipeline {
	b := router.NewBuilder().
		Use(
			middleware.AccessLog(logger, clock),
			middleware.CORS(middleware.DefaultCORSOptions()),
			middleware.Compress(middleware.DefaultCompressOptions()),
			middleware.BodyLimit(int(cfg.maxBodyBytes)),
			middleware.Cookies(),
			middleware.Form(),
			middleware.JSON(),
		)

	if cfg.staticDir != "" {
		b.Use(middleware.Static(cfg.staticDir, middleware.DefaultStaticOptions()))
	}

	b.Get("/search", search).
		Post("/echo", echo).
		Put("/update", update).
		Delete("/remove", remove).
		Get("/hello", hello)

	return b.Build(router.Options{Logger: logger, Production: cfg.production})
}

func search(_ *router.HandleContext, req *http.Request) *http.Response {
	query := req.Query
	if query == nil {
		query = map[string]string{}
	}
	return http.Text(200, "You searched for: "+marshal(query))
}

func echo(_ *router.HandleContext, req *http.Request) *http.Response {
	if req.JSON != nil {
		return http.Text(200, "POST body: "+marshal(req.JSON))
	}
	if req.Form != nil {
		return http.Text(200, "POST body: "+marshal(req.Form))
	}
	return http.Text(200, "POST body: "+marshal(string(req.Body)))
}

func update(_ *router.HandleContext, req *http.Request) *http.Response {
	return http.Text(200, "Updated with: "+string(req.Body))
}

func remove(_ *router.HandleContext, _ *http.Request) *http.Response {
	return http.Text(200, "Deleted resource")
}

func hello(_ *router.HandleContext, _ *http.Request) *http.Response {
	return http.Bytes(200, "text/plain", []byte("Hello from HTTPS server!"))
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Decoded JSON values and maps of strings always marshal.
		panic(err)
	}
	return string(b)
}
