package wire

import (
	"io"
	"strconv"
	"time"

	"rawhttp/application/http"
	"rawhttp/application/http/status"
	"rawhttp/application/http/transfer"
	"rawhttp/application/util/rule"
	iolib "rawhttp/lib/io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

var interim100 = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// Interim100 returns the interim response sent to a client expecting 100-continue.
func Interim100() []byte { return append([]byte(nil), interim100...) }

// Serializer renders responses in HTTP/1.1 wire form.
// It fills the framing headers the caller left unset.
type Serializer struct {
	Clock clock.Clock
	// KeepAliveTimeout and KeepAliveMax are advertised with the Keep-Alive header.
	KeepAliveTimeout time.Duration
	KeepAliveMax     uint
}

// Serialize returns the wire form of res.
// keepAlive decides whether the connection persists after res.
func (s Serializer) Serialize(res *http.Response, keepAlive bool) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := s.encode(buf, res, keepAlive, true); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

// WriteTo writes the wire form of res to w.
func (s Serializer) WriteTo(w io.Writer, res *http.Response, keepAlive bool) (int64, error) {
	return s.write(w, res, keepAlive, true)
}

// WriteHeadTo writes the status line and the header section of res to w.
// It answers HEAD requests, so the framing headers still describe the body.
func (s Serializer) WriteHeadTo(w io.Writer, res *http.Response, keepAlive bool) (int64, error) {
	return s.write(w, res, keepAlive, false)
}

func (s Serializer) write(w io.Writer, res *http.Response, keepAlive, withBody bool) (int64, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := s.encode(buf, res, keepAlive, withBody); err != nil {
		return 0, err
	}

	n, err := iolib.WriteFull(w, buf.B)
	if err != nil {
		return int64(n), errors.Wrap(err, "writing response")
	}
	return int64(n), nil
}

// Header returns the header fields res is sent with.
func (s Serializer) Header(res *http.Response, keepAlive bool) http.ResponseHeader {
	h := res.Header.Clone()
	code := res.Status

	chunked := rule.HasToken(h.Get("Transfer-Encoding"), "chunked")
	switch {
	case status.IsInformational(code) || code == status.NoContent.Code:
		h.Del("Content-Length")
		h.Del("Transfer-Encoding")
	case !status.AllowsBody(code):
		// 304 may keep the Content-Length of the selected representation.
		h.Del("Transfer-Encoding")
	case chunked:
		h.Del("Content-Length")
	default:
		h.SetDefault("Content-Length", strconv.Itoa(len(res.Body)))
	}

	if status.AllowsBody(code) {
		h.SetDefault("Content-Type", "text/plain")
	}
	h.SetDefault("Date", s.now().UTC().Format(http.TimeFormat))

	if keepAlive {
		h.Set("Connection", "keep-alive")
		h.Set("Keep-Alive", s.keepAliveValue())
	} else {
		h.Set("Connection", "close")
		h.Del("Keep-Alive")
	}

	return h
}

func (s Serializer) encode(buf *bytebufferpool.ByteBuffer, res *http.Response, keepAlive, withBody bool) error {
	h := s.Header(res, keepAlive)

	reason := status.UnknownReason
	if st, ok := status.FromCode(res.Status); ok {
		reason = st.ReasonPhrase
	}

	buf.Write(http.Version11.Text())
	buf.WriteByte(rule.SP)
	buf.WriteString(strconv.FormatUint(uint64(res.Status), 10))
	buf.WriteByte(rule.SP)
	buf.WriteString(reason)
	buf.Write(rule.CRLF)

	for _, field := range h.Fields() {
		buf.Write(field.Text())
		buf.Write(rule.CRLF)
	}
	buf.Write(rule.CRLF)

	if !withBody || !status.AllowsBody(res.Status) {
		return nil
	}

	if !rule.HasToken(h.Get("Transfer-Encoding"), "chunked") {
		buf.Write(res.Body)
		return nil
	}

	cw := transfer.NewChunkedWriter(buf)
	if _, err := cw.Write(res.Body); err != nil {
		return errors.Wrap(err, "encoding chunked body")
	}
	if err := cw.Close(); err != nil {
		return errors.Wrap(err, "encoding chunked body")
	}
	return nil
}

func (s Serializer) keepAliveValue() string {
	v := "timeout=" + strconv.FormatInt(int64(s.KeepAliveTimeout/time.Second), 10)
	if s.KeepAliveMax > 0 {
		v += ", max=" + strconv.FormatUint(uint64(s.KeepAliveMax), 10)
	}
	return v
}

func (s Serializer) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
