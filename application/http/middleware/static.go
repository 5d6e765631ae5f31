package middleware

import (
	"crypto/md5"
	"encoding/hex"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"
	"rawhttp/application/util/uri"

	"github.com/pkg/errors"
)

type StaticOptions struct {
	// Index is served for directory paths.
	Index  string
	MaxAge time.Duration
}

func DefaultStaticOptions() StaticOptions {
	return StaticOptions{
		Index:  "index.html",
		MaxAge: 24 * time.Hour,
	}
}

// Static serves files under root for GET and HEAD requests.
// Paths that don't name a file fall through to the next link.
// Paths with ".." segments are answered with 403 Forbidden.
func Static(root string, opts StaticOptions) router.Middleware {
	return func(c *router.HandleContext, req *http.Request, next router.Next) *http.Response {
		if req.Method != "GET" && req.Method != "HEAD" {
			return next()
		}

		decoded, err := uri.Unescape(req.Path, false)
		if err != nil {
			return http.ErrorResponse(status.NewError(err, status.BadRequest))
		}
		if escapesRoot(decoded) {
			return http.StatusText(status.Forbidden.Code)
		}

		name := filepath.Join(root, filepath.FromSlash(uri.RemoveDotSegments(decoded)))
		info, err := os.Stat(name)
		if err == nil && info.IsDir() {
			name = filepath.Join(name, opts.Index)
			info, err = os.Stat(name)
		}
		if err != nil || info.IsDir() {
			return next()
		}

		content, err := os.ReadFile(name)
		if err != nil {
			return http.ErrorResponse(errors.Wrapf(err, "reading %s", name))
		}

		return serveContent(req, name, info.ModTime(), content, opts)
	}
}

func escapesRoot(path string) bool {
	if strings.ContainsAny(path, "\x00\\") {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func serveContent(req *http.Request, name string, modTime time.Time, content []byte, opts StaticOptions) *http.Response {
	sum := md5.Sum(content)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`

	var h http.ResponseHeader
	h.Set("ETag", etag)
	h.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(opts.MaxAge/time.Second))+", must-revalidate")

	if notModified(req, etag, modTime) {
		res := http.NewResponse(status.NotModified.Code)
		res.Header = h
		return res
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res := http.Bytes(status.OK.Code, contentType, content)
	for _, f := range h.Fields() {
		res.Header.Set(f.Name, f.Value)
	}
	return res
}

// notModified evaluates If-None-Match, or If-Modified-Since when the former is absent.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-13.2.2
func notModified(req *http.Request, etag string, modTime time.Time) bool {
	if inm, ok := req.Header.Lookup("if-none-match"); ok {
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
			if candidate == "*" || candidate == etag {
				return true
			}
		}
		return false
	}

	ims, ok := req.Header.Lookup("if-modified-since")
	if !ok {
		return false
	}
	t, err := time.Parse(http.TimeFormat, ims)
	if err != nil {
		return false
	}
	return !modTime.Truncate(time.Second).After(t)
}
