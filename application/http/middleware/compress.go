package middleware

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

type CompressOptions struct {
	// Bodies shorter than Threshold bytes are sent as is.
	Threshold int
	// A response is compressed if its content type matches Include
	// and doesn't match Exclude.
	Include *regexp.Regexp
	Exclude *regexp.Regexp

	GzipLevel   int
	BrotliLevel int
}

func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		Threshold:   1024,
		Include:     regexp.MustCompile(`^(text/|application/(json|javascript|xml|wasm))`),
		Exclude:     regexp.MustCompile(`^(image/|audio/|video/|application/pdf)`),
		GzipLevel:   gzip.DefaultCompression,
		BrotliLevel: brotli.DefaultCompression,
	}
}

// Compress encodes response bodies with br or gzip, whichever the client
// accepts, preferring br.
func Compress(opts CompressOptions) router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		res := next()
		addVary(res, "Accept-Encoding")

		if !compressible(res, opts) {
			return res
		}

		coding := negotiateCoding(req.Header.Get("accept-encoding"))
		if coding == "" {
			return res
		}

		encoded, err := encode(res.Body, coding, opts)
		if err != nil || len(encoded) >= len(res.Body) {
			return res
		}

		res.Body = encoded
		res.Header.Set("Content-Encoding", coding)
		res.Header.Set("Content-Length", strconv.Itoa(len(encoded)))
		return res
	}
}

func compressible(res *http.Response, opts CompressOptions) bool {
	if res.Status < 200 || !status.AllowsBody(res.Status) {
		return false
	}
	if res.Header.Has("Content-Encoding") || len(res.Body) < opts.Threshold {
		return false
	}

	contentType := strings.ToLower(res.Header.Get("Content-Type"))
	if opts.Exclude != nil && opts.Exclude.MatchString(contentType) {
		return false
	}
	return opts.Include == nil || opts.Include.MatchString(contentType)
}

// negotiateCoding picks br or gzip from an Accept-Encoding value.
// Codings with q=0 are refused.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-12.5.3
func negotiateCoding(acceptEncoding string) string {
	accepted := make(map[string]bool)
	for _, item := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(item, ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		accepted[name] = qValue(params) > 0
	}

	for _, coding := range []string{"br", "gzip"} {
		if ok, listed := accepted[coding]; listed {
			if ok {
				return coding
			}
			continue
		}
		if accepted["*"] {
			return coding
		}
	}
	return ""
}

func qValue(params string) float64 {
	for _, param := range strings.Split(params, ";") {
		k, v, _ := strings.Cut(param, "=")
		if strings.TrimSpace(strings.ToLower(k)) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return q
	}
	return 1
}

func encode(body []byte, coding string, opts CompressOptions) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var (
		w   io.WriteCloser
		err error
	)
	switch coding {
	case "br":
		w = brotli.NewWriterLevel(buf, opts.BrotliLevel)
	default:
		w, err = gzip.NewWriterLevel(buf, opts.GzipLevel)
		if err != nil {
			return nil, err
		}
	}

	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf.B...), nil
}
