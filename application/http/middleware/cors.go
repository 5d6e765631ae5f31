package middleware

import (
	"slices"
	"strconv"
	"strings"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"
)

type CORSOptions struct {
	// Origins allowed to read responses. "*" allows any.
	Origins []string
	Methods []string
	// AllowedHeaders answered to preflights. "*" reflects the requested ones.
	AllowedHeaders []string
	ExposedHeaders []string
	Credentials    bool
	// MaxAge in seconds. Negative omits the header.
	MaxAge int
}

func DefaultCORSOptions() CORSOptions {
	return CORSOptions{
		Origins:        []string{"*"},
		Methods:        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	}
}

const defaultAllowedHeaders = "content-type, authorization"

// CORS answers preflight requests and adds access control headers to
// responses of cross origin requests. Requests without Origin pass through.
//
// Reference: https://fetch.spec.whatwg.org/#http-cors-protocol
func CORS(opts CORSOptions) router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		origin := req.Header.Get("origin")
		if origin == "" {
			return next()
		}

		allowOrigin := opts.allowOrigin(origin)
		if allowOrigin == "" {
			return next()
		}

		if req.Method == "OPTIONS" && req.Header.Has("access-control-request-method") {
			res := http.NewResponse(status.NoContent.Code)
			opts.setCommon(res, allowOrigin)
			res.Header.Set("Access-Control-Allow-Methods", strings.Join(opts.Methods, ", "))
			res.Header.Set("Access-Control-Allow-Headers", opts.allowHeaders(req))
			if opts.MaxAge >= 0 {
				res.Header.Set("Access-Control-Max-Age", strconv.Itoa(opts.MaxAge))
			}
			return res
		}

		res := next()
		opts.setCommon(res, allowOrigin)
		if len(opts.ExposedHeaders) > 0 {
			res.Header.Set("Access-Control-Expose-Headers", strings.Join(opts.ExposedHeaders, ", "))
		}
		return res
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin,
// or an empty string if origin isn't allowed.
// A wildcard can't be used with credentials, so origin is echoed instead.
func (o CORSOptions) allowOrigin(origin string) string {
	if slices.Contains(o.Origins, "*") {
		if o.Credentials {
			return origin
		}
		return "*"
	}
	if slices.Contains(o.Origins, origin) {
		return origin
	}
	return ""
}

func (o CORSOptions) allowHeaders(req *http.Request) string {
	if !slices.Contains(o.AllowedHeaders, "*") {
		return strings.Join(o.AllowedHeaders, ", ")
	}
	if requested := req.Header.Get("access-control-request-headers"); requested != "" {
		return requested
	}
	return defaultAllowedHeaders
}

func (o CORSOptions) setCommon(res *http.Response, allowOrigin string) {
	res.Header.Set("Access-Control-Allow-Origin", allowOrigin)
	addVary(res, "Origin")
	if o.Credentials {
		res.Header.Set("Access-Control-Allow-Credentials", "true")
	}
}
