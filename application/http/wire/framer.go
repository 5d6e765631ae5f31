// Package wire frames requests out of a connection byte stream
// and serializes responses back onto it.
package wire

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"rawhttp/application/http"
	"rawhttp/application/http/transfer"
	"rawhttp/application/util/rule"
	bytesutil "rawhttp/lib/bytes"

	"github.com/pkg/errors"
)

// State is the framing state of a connection.
type State uint8

const (
	// StateIdle waits for the head of the next request.
	StateIdle State = iota
	// StateAwaitingFixedBody waits for Content-Length bytes of body.
	StateAwaitingFixedBody
	// StateAwaitingChunkedBody feeds buffered bytes into the chunked decoder.
	StateAwaitingChunkedBody
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFixedBody:
		return "awaiting fixed body"
	case StateAwaitingChunkedBody:
		return "awaiting chunked body"
	}
	return "unknown"
}

type FramerOptions struct {
	// MaxHeaderBytes bounds the head of a request. Zero means no bound.
	MaxHeaderBytes int
	// MaxBodyBytes bounds the body of a request, fixed or chunked. Zero means no bound.
	MaxBodyBytes uint64
}

// Framer splits a byte stream into requests.
// It's not safe for concurrent use.
type Framer struct {
	opts FramerOptions

	buf   *bytesutil.Window
	state State

	// Request whose head has been parsed, waiting for its body.
	pending       *http.Request
	head          []byte
	contentLength int
	chunked       *transfer.ChunkedState

	// expectContinue is set while the pending request waits for 100 Continue
	// which has not been raised yet.
	expectContinue bool
	continueRaised bool
}

func NewFramer(opts FramerOptions) *Framer {
	return &Framer{
		opts: opts,
		buf:  bytesutil.NewWindow(),
	}
}

func (f *Framer) State() State { return f.state }

// Buffered returns the number of bytes not framed yet.
func (f *Framer) Buffered() int { return f.buf.Len() }

// Feed appends p to the framing buffer.
func (f *Framer) Feed(p []byte) { f.buf.Append(p) }

// Fill reads once from r directly into the framing buffer.
func (f *Framer) Fill(r io.Reader, size int) (int, error) { return f.buf.Fill(r, size) }

// TakeContinue reports whether the pending request is waiting for
// an interim 100 Continue response. It returns true at most once per request.
func (f *Framer) TakeContinue() bool {
	raised := f.continueRaised
	f.continueRaised = false
	return raised
}

// Release returns the framing buffer to the pool.
func (f *Framer) Release() { f.buf.Release() }

// Next returns the next complete request in the buffer.
// It returns [http.ErrIncompleteFrame] when more bytes are needed.
// Any other error leaves the framer in an undefined state
// and the connection should be closed.
func (f *Framer) Next() (*http.Request, error) {
	switch f.state {
	case StateIdle:
		return f.nextHead()
	case StateAwaitingFixedBody:
		return f.nextFixedBody()
	case StateAwaitingChunkedBody:
		return f.nextChunkedBody()
	}
	return nil, errors.Errorf("invalid framer state %d", f.state)
}

func (f *Framer) nextHead() (*http.Request, error) {
	// Empty lines before the request line are ignored.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
	if err := f.buf.Advance(leadingEmptyLines(f.buf.Bytes())); err != nil {
		return nil, errors.Wrap(err, "skipping empty lines")
	}

	b := f.buf.Bytes()
	idx := bytes.Index(b, rule.HeadTerminator)
	if idx < 0 {
		if f.opts.MaxHeaderBytes > 0 && len(b) > f.opts.MaxHeaderBytes {
			return nil, http.ErrHeaderTooLarge
		}
		return nil, http.ErrIncompleteFrame
	}

	headLen := idx + len(rule.HeadTerminator)
	if f.opts.MaxHeaderBytes > 0 && headLen > f.opts.MaxHeaderBytes {
		return nil, http.ErrHeaderTooLarge
	}

	req, err := http.ParseHead(b[:headLen])
	if err != nil {
		return nil, err
	}
	head := append([]byte(nil), b[:headLen]...)
	if err := f.buf.Advance(headLen); err != nil {
		return nil, errors.Wrap(err, "advancing over head")
	}

	if te, ok := req.Header.Lookup("transfer-encoding"); ok {
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.4
		if !strings.EqualFold(rule.LastToken(te), "chunked") {
			return nil, errors.Wrapf(http.ErrMalformedRequest, "unsupported transfer coding %q", te)
		}

		f.await(StateAwaitingChunkedBody, req, head)
		f.chunked = transfer.NewChunkedState()
		f.chunked.LimitTrailers(f.opts.MaxHeaderBytes)
		return f.nextChunkedBody()
	}

	length, err := parseContentLength(req)
	if err != nil {
		return nil, err
	}
	if f.opts.MaxBodyBytes > 0 && length > f.opts.MaxBodyBytes {
		return nil, errors.Wrapf(http.ErrPayloadTooLarge, "content length %d", length)
	}
	if length == 0 {
		req.Raw = head
		return req, nil
	}

	f.await(StateAwaitingFixedBody, req, head)
	f.contentLength = int(length)
	return f.nextFixedBody()
}

func (f *Framer) await(state State, req *http.Request, head []byte) {
	f.state = state
	f.pending = req
	f.head = head
	f.expectContinue = req.ExpectsContinue()
}

func (f *Framer) nextFixedBody() (*http.Request, error) {
	if f.buf.Len() < f.contentLength {
		f.raiseContinue()
		return nil, http.ErrIncompleteFrame
	}

	req := f.pending
	req.Body = append([]byte(nil), f.buf.Bytes()[:f.contentLength]...)
	req.Raw = append(f.head, req.Body...)

	if err := f.buf.Advance(f.contentLength); err != nil {
		return nil, errors.Wrap(err, "advancing over body")
	}

	f.reset()
	return req, nil
}

func (f *Framer) nextChunkedBody() (*http.Request, error) {
	n, err := f.chunked.Feed(f.buf.Bytes(), f.opts.MaxBodyBytes)
	if advErr := f.buf.Advance(n); advErr != nil {
		return nil, errors.Wrap(advErr, "advancing over chunks")
	}
	if err != nil {
		return nil, err
	}

	if !f.chunked.Complete() {
		f.raiseContinue()
		return nil, http.ErrIncompleteFrame
	}

	body, err := f.chunked.Body()
	if err != nil {
		return nil, err
	}
	trailers, err := f.chunked.TrailerHeader()
	if err != nil {
		return nil, err
	}

	req := f.pending
	req.Header.Del("transfer-encoding")
	req.Header.Set("content-length", strconv.Itoa(len(body)))
	req.Trailers = trailers
	req.Body = body
	req.Raw = append(rebuildHead(req), body...)

	f.reset()
	return req, nil
}

func (f *Framer) raiseContinue() {
	if f.expectContinue {
		f.expectContinue = false
		f.continueRaised = true
	}
}

func (f *Framer) reset() {
	f.state = StateIdle
	f.pending = nil
	f.head = nil
	f.contentLength = 0
	f.chunked = nil
	f.expectContinue = false
	f.continueRaised = false
}

func leadingEmptyLines(b []byte) int {
	n := 0
	for {
		switch {
		case bytes.HasPrefix(b[n:], rule.CRLF):
			n += len(rule.CRLF)
		case len(b) > n && b[n] == rule.LF:
			n++
		default:
			return n
		}
	}
}

// parseContentLength returns 0 when there's no Content-Length.
// Repeated fields are allowed only if every value is the same.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6
func parseContentLength(req *http.Request) (uint64, error) {
	v, ok := req.Header.Lookup("content-length")
	if !ok {
		return 0, nil
	}

	var length uint64
	for idx, raw := range strings.Split(v, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
			return 0, errors.Wrapf(http.ErrMalformedRequest, "invalid content length %q", v)
		}

		n, err := strconv.ParseUint(raw, 10, 63)
		if err != nil {
			return 0, errors.Wrapf(http.ErrMalformedRequest, "invalid content length %q", v)
		}
		if idx > 0 && n != length {
			return 0, errors.Wrapf(http.ErrMalformedRequest, "conflicting content length %q", v)
		}
		length = n
	}

	return length, nil
}

// rebuildHead renders the head of req in wire form.
func rebuildHead(req *http.Request) []byte {
	var b bytes.Buffer
	b.WriteString(req.Method)
	b.WriteByte(rule.SP)
	b.WriteString(req.Target)
	b.WriteByte(rule.SP)
	b.Write(req.Version.Text())
	b.Write(rule.CRLF)

	req.Header.Each(func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.Write(rule.CRLF)
	})
	b.Write(rule.CRLF)

	return b.Bytes()
}
