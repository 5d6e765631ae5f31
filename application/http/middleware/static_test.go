package middleware

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rawhttp/application/http"

	"github.com/stretchr/testify/suite"
)

type StaticTestSuite struct {
	suite.Suite

	root    string
	modTime time.Time
	etag    string
}

func TestStaticTestSuite(t *testing.T) {
	suite.Run(t, new(StaticTestSuite))
}

func (s *StaticTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.modTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	content := []byte("<h1>hi</h1>")
	sum := md5.Sum(content)
	s.etag = `"` + hex.EncodeToString(sum[:]) + `"`

	s.Require().NoError(os.MkdirAll(filepath.Join(s.root, "docs"), 0o755))
	for _, name := range []string{"index.html", "docs/index.html"} {
		path := filepath.Join(s.root, filepath.FromSlash(name))
		s.Require().NoError(os.WriteFile(path, content, 0o644))
		s.Require().NoError(os.Chtimes(path, s.modTime, s.modTime))
	}
	s.Require().NoError(os.WriteFile(filepath.Join(s.root, "data.bin"), []byte{1, 2, 3}, 0o644))
}

func (s *StaticTestSuite) serve(req *http.Request) *http.Response {
	return serve(Static(s.root, DefaultStaticOptions()), req, respond(http.Text(200, "fallthrough")))
}

func (s *StaticTestSuite) TestServeFile() {
	res := s.serve(newRequest("GET", "/index.html"))

	s.Equal(uint(200), res.Status)
	s.Equal([]byte("<h1>hi</h1>"), res.Body)
	s.Equal("text/html; charset=utf-8", res.Header.Get("Content-Type"))
	s.Equal(s.etag, res.Header.Get("ETag"))
	s.Equal("Tue, 02 Jan 2024 03:04:05 GMT", res.Header.Get("Last-Modified"))
	s.Equal("public, max-age=86400, must-revalidate", res.Header.Get("Cache-Control"))
}

func (s *StaticTestSuite) TestDirectoryIndex() {
	res := s.serve(newRequest("GET", "/docs/"))
	s.Equal([]byte("<h1>hi</h1>"), res.Body)

	res = s.serve(newRequest("GET", "/"))
	s.Equal([]byte("<h1>hi</h1>"), res.Body)
}

func (s *StaticTestSuite) TestUnknownExtension() {
	res := s.serve(newRequest("GET", "/data.bin"))
	s.Equal("application/octet-stream", res.Header.Get("Content-Type"))
}

func (s *StaticTestSuite) TestFallThrough() {
	res := s.serve(newRequest("GET", "/missing.txt"))
	s.Equal("fallthrough", string(res.Body))

	res = s.serve(newRequest("POST", "/index.html"))
	s.Equal("fallthrough", string(res.Body))
}

func (s *StaticTestSuite) TestTraversal() {
	for _, path := range []string{"/../secret", "/docs/../../secret", "/%2e%2e/secret", "/a\\b"} {
		res := s.serve(newRequest("GET", path))
		s.Equal(uint(403), res.Status, path)
	}
}

func (s *StaticTestSuite) TestBadEncoding() {
	res := s.serve(newRequest("GET", "/%zz"))
	s.Equal(uint(400), res.Status)
}

func (s *StaticTestSuite) TestIfNoneMatch() {
	res := s.serve(newRequest("GET", "/index.html", "If-None-Match", `"other", `+s.etag))
	s.Equal(uint(304), res.Status)
	s.Empty(res.Body)
	s.Equal(s.etag, res.Header.Get("ETag"))

	res = s.serve(newRequest("GET", "/index.html", "If-None-Match", `"other"`,
		"If-Modified-Since", "Tue, 02 Jan 2024 03:04:05 GMT"))
	s.Equal(uint(200), res.Status)
}

func (s *StaticTestSuite) TestIfModifiedSince() {
	res := s.serve(newRequest("GET", "/index.html", "If-Modified-Since", "Tue, 02 Jan 2024 03:04:05 GMT"))
	s.Equal(uint(304), res.Status)

	res = s.serve(newRequest("GET", "/index.html", "If-Modified-Since", "Mon, 01 Jan 2024 00:00:00 GMT"))
	s.Equal(uint(200), res.Status)

	res = s.serve(newRequest("GET", "/index.html", "If-Modified-Since", "garbage"))
	s.Equal(uint(200), res.Status)
}
