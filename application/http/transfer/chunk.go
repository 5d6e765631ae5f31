// Package transfer implements the chunked transfer coding.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1
package transfer

import (
	"bytes"
	"io"
	"math"
	"strconv"

	"rawhttp/application/http"
	"rawhttp/application/util/rule"

	"github.com/pkg/errors"
)

const (
	// maxSizeDigits bounds the chunk size to 64 bits.
	maxSizeDigits = 16
	// maxLineBytes bounds a single size or trailer line.
	maxLineBytes = 8 << 10
	// DefaultMaxTrailerBytes bounds the whole trailer section.
	DefaultMaxTrailerBytes = 64 << 10
)

// ChunkedState decodes a chunked body incrementally.
// Bytes may be fed in arbitrary fragments. Chunk data is only taken when the
// whole chunk and its CRLF are available, so the caller keeps unconsumed
// bytes in its own buffer and feeds them again later.
type ChunkedState struct {
	done         bool
	awaitingSize bool
	size         uint64

	chunks [][]byte
	total  uint64

	trailerMode bool
	trailers    []byte
	maxTrailers int

	// carry holds an unterminated size or trailer line.
	carry []byte
}

func NewChunkedState() *ChunkedState {
	return &ChunkedState{awaitingSize: true, maxTrailers: DefaultMaxTrailerBytes}
}

// LimitTrailers bounds the trailer section to n bytes, line terminators included.
// A non-positive n restores the default bound.
func (s *ChunkedState) LimitTrailers(n int) {
	if n <= 0 {
		n = DefaultMaxTrailerBytes
	}
	s.maxTrailers = n
}

// Feed decodes as much of p as possible and returns the number of bytes consumed.
// maxBytes bounds the total decoded size. Zero means no bound.
// Line fragments are copied into the state and count as consumed.
func (s *ChunkedState) Feed(p []byte, maxBytes uint64) (int, error) {
	consumed := 0

	for !s.done {
		if s.trailerMode || s.awaitingSize {
			line, n, ok, err := s.takeLine(p[consumed:])
			consumed += n
			if err != nil {
				return consumed, err
			}
			if !ok {
				return consumed, nil
			}

			if s.trailerMode {
				if err := s.handleTrailerLine(line); err != nil {
					return consumed, err
				}
				continue
			}
			if err := s.handleSizeLine(line, maxBytes); err != nil {
				return consumed, err
			}
			continue
		}

		rest := p[consumed:]
		if uint64(len(rest)) < s.size+2 {
			return consumed, nil
		}

		data, delim := rest[:s.size], rest[s.size:s.size+2]
		if !bytes.Equal(delim, rule.CRLF) {
			return consumed, errors.Wrapf(http.ErrMalformedChunk, "chunk data is followed by %q", delim)
		}

		if maxBytes > 0 && s.total+s.size > maxBytes {
			return consumed, http.ErrPayloadTooLarge
		}

		s.chunks = append(s.chunks, append([]byte(nil), data...))
		s.total += s.size
		consumed += int(s.size) + 2
		s.awaitingSize = true
	}

	return consumed, nil
}

// takeLine returns a CRLF terminated line, without CRLF, joined with carry.
// If there's no LF in p, p is moved into carry.
func (s *ChunkedState) takeLine(p []byte) (line []byte, n int, ok bool, err error) {
	idx := bytes.IndexByte(p, rule.LF)
	if idx < 0 {
		if len(s.carry)+len(p) > maxLineBytes {
			return nil, len(p), false, errors.Wrap(http.ErrMalformedChunk, "line too long")
		}
		s.carry = append(s.carry, p...)
		return nil, len(p), false, nil
	}

	if len(s.carry)+idx+1 > maxLineBytes {
		return nil, idx + 1, false, errors.Wrap(http.ErrMalformedChunk, "line too long")
	}

	line = append(s.carry, p[:idx+1]...)
	s.carry = nil

	if len(line) < 2 || line[len(line)-2] != rule.CR {
		return nil, idx + 1, false, errors.Wrap(http.ErrMalformedChunk, "line is not terminated with CRLF")
	}

	return line[:len(line)-2], idx + 1, true, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-7.1.1
func (s *ChunkedState) handleSizeLine(line []byte, maxBytes uint64) error {
	// Extensions are not interpreted.
	raw, _, _ := bytes.Cut(line, []byte{';'})
	raw = bytes.TrimFunc(raw, rule.IsOWS)

	if len(raw) == 0 || len(raw) > maxSizeDigits {
		return errors.Wrapf(http.ErrInvalidChunkSize, "%q", raw)
	}
	for _, c := range raw {
		if !rule.IsHexDigit(c) {
			return errors.Wrapf(http.ErrInvalidChunkSize, "%q", raw)
		}
	}

	size, err := strconv.ParseUint(string(raw), 16, 64)
	if err != nil {
		return errors.Wrap(http.ErrInvalidChunkSize, err.Error())
	}

	if size == 0 {
		s.awaitingSize = false
		s.trailerMode = true
		return nil
	}

	if maxBytes > 0 && s.total+size > maxBytes {
		return http.ErrPayloadTooLarge
	}
	if size > math.MaxInt32 {
		return http.ErrPayloadTooLarge
	}

	s.size = size
	s.awaitingSize = false
	return nil
}

func (s *ChunkedState) handleTrailerLine(line []byte) error {
	if len(line) == 0 {
		s.done = true
		return nil
	}
	if len(s.trailers)+len(line)+len(rule.CRLF) > s.maxTrailers {
		return errors.Wrapf(http.ErrPayloadTooLarge, "trailer section exceeds %d bytes", s.maxTrailers)
	}
	s.trailers = append(s.trailers, line...)
	s.trailers = append(s.trailers, rule.CRLF...)
	return nil
}

// Complete reports whether the last chunk and the trailer section were decoded.
func (s *ChunkedState) Complete() bool { return s.done }

// Len returns the number of decoded body bytes so far.
func (s *ChunkedState) Len() uint64 { return s.total }

// Body returns the decoded body.
func (s *ChunkedState) Body() ([]byte, error) {
	if !s.done {
		return nil, errors.Wrap(http.ErrIncompleteFrame, "chunked body is not complete")
	}

	body := make([]byte, 0, s.total)
	for _, chunk := range s.chunks {
		body = append(body, chunk...)
	}
	return body, nil
}

// Trailers returns the raw trailer field lines, each terminated with CRLF.
func (s *ChunkedState) Trailers() []byte { return s.trailers }

// TrailerHeader parses the trailer section.
func (s *ChunkedState) TrailerHeader() (http.Header, error) {
	var h http.Header
	if err := http.ParseFieldLines(s.trailers, &h); err != nil {
		return http.Header{}, errors.Wrap(http.ErrMalformedChunk, err.Error())
	}
	return h, nil
}

type ChunkedWriter struct {
	w         io.Writer
	headerBuf *bytes.Buffer

	extensions [][2]string
	trailers   []http.Field
}

var _ io.WriteCloser = (*ChunkedWriter)(nil)

// NewChunkedWriter encodes everything written into chunks.
// trailers are written on [ChunkedWriter.Close].
func NewChunkedWriter(w io.Writer, trailers ...http.Field) *ChunkedWriter {
	return &ChunkedWriter{
		w:         w,
		headerBuf: bytes.NewBuffer(nil),
		trailers:  trailers,
	}
}

// SetExtensions sets extensions of the next chunk.
func (cw *ChunkedWriter) SetExtensions(extensions [][2]string) {
	cw.extensions = extensions
}

func (cw *ChunkedWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		// Zero sized chunk means the end of body.
		return 0, nil
	}

	if err := cw.writeChunkHeader(uint64(len(p))); err != nil {
		return 0, errors.Wrap(err, "writing chunk header")
	}

	n, err = cw.w.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "writing chunk data")
	}

	if _, err := cw.w.Write(rule.CRLF); err != nil {
		return n, errors.Wrap(err, "writing chunk delimiter")
	}

	return n, nil
}

// Close writes the last chunk and the trailer section.
// It does not close the underlying writer.
func (cw *ChunkedWriter) Close() error {
	if err := cw.writeChunkHeader(0); err != nil {
		return errors.Wrap(err, "writing last chunk")
	}

	for _, field := range cw.trailers {
		if err := writeLine(cw.w, field.Text()); err != nil {
			return errors.Wrap(err, "writing trailer")
		}
	}

	if err := writeLine(cw.w, nil); err != nil {
		return errors.Wrap(err, "writing last trailer line")
	}

	return nil
}

func (cw *ChunkedWriter) writeChunkHeader(size uint64) error {
	buf := cw.headerBuf
	buf.Reset()
	buf.WriteString(strconv.FormatUint(size, 16))
	for _, ext := range cw.extensions {
		buf.WriteByte(';')
		buf.WriteString(ext[0])
		if ext[1] != "" {
			buf.WriteByte('=')
			buf.WriteString(ext[1])
		}
	}
	cw.extensions = nil

	return writeLine(cw.w, buf.Bytes())
}

func writeLine(w io.Writer, line []byte) error {
	b := make([]byte, 0, len(line)+len(rule.CRLF))
	b = append(b, line...)
	b = append(b, rule.CRLF...)

	_, err := w.Write(b)
	return err
}
