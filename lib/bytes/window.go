package bytesutil

import (
	"io"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// Window is an append-only byte buffer with a read cursor.
// Consumed bytes are dropped by advancing the cursor,
// and the backing storage is compacted lazily on the next append.
//
// Slices returned by [Window.Bytes] are invalidated by any later
// call to [Window.Append] or [Window.Fill].
type Window struct {
	buf *bytebufferpool.ByteBuffer
	off int
}

// NewWindow creates a window backed by a pooled buffer.
// Call [Window.Release] when done.
func NewWindow() *Window {
	return &Window{buf: bytebufferpool.Get()}
}

// Bytes returns the unconsumed bytes.
func (w *Window) Bytes() []byte { return w.buf.B[w.off:] }

// Len returns the number of unconsumed bytes.
func (w *Window) Len() int { return len(w.buf.B) - w.off }

func (w *Window) Append(p []byte) {
	w.compact()
	w.buf.B = append(w.buf.B, p...)
}

// Fill reads once from r into the spare room of the window,
// growing it to have at least size bytes available.
func (w *Window) Fill(r io.Reader, size int) (int, error) {
	w.compact()

	b := w.buf.B
	if cap(b)-len(b) < size {
		grown := make([]byte, len(b), len(b)+size)
		copy(grown, b)
		b = grown
	}

	n, err := r.Read(b[len(b):cap(b)])
	w.buf.B = b[:len(b)+n]
	return n, err
}

// Advance marks the first n unconsumed bytes as consumed.
func (w *Window) Advance(n int) error {
	if n < 0 || n > w.Len() {
		return errors.Errorf("advancing %d bytes over window of %d bytes", n, w.Len())
	}

	w.off += n
	if w.off == len(w.buf.B) {
		w.buf.Reset()
		w.off = 0
	}
	return nil
}

// Reset drops every byte in the window.
func (w *Window) Reset() {
	w.buf.Reset()
	w.off = 0
}

// Release returns the backing buffer to the pool.
// The window must not be used afterwards.
func (w *Window) Release() {
	if w.buf == nil {
		return
	}
	bytebufferpool.Put(w.buf)
	w.buf = nil
	w.off = 0
}

// compact moves unconsumed bytes to the front once
// the consumed prefix takes up at least half of the buffer.
func (w *Window) compact() {
	if w.off == 0 || w.off < len(w.buf.B)/2 {
		return
	}

	n := copy(w.buf.B, w.buf.B[w.off:])
	w.buf.B = w.buf.B[:n]
	w.off = 0
}
