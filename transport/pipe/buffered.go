// Package pipe implements in-memory connections.
package pipe

import (
	"sync"
	"time"

	"rawhttp/transport"

	"github.com/benbjohnson/clock"
)

const DefaultBufSize = 4 << 10

// Addr names one end of a pipe.
type Addr struct {
	Name string
}

var _ transport.Addr = Addr{}

func (a Addr) Network() string { return "pipe" }
func (a Addr) String() string  { return a.Name }

// stream carries bytes in one direction.
// It holds at most size bytes that were written and not yet read.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	size   int
	closed bool

	// wmu keeps a write from interleaving with another one.
	wmu sync.Mutex
}

func newStream(size int) *stream {
	st := &stream{buf: make([]byte, 0, size), size: size}
	st.cond = sync.NewCond(&st.mu)
	return st
}

func (st *stream) wake() {
	st.mu.Lock()
	st.cond.Broadcast()
	st.mu.Unlock()
}

func (st *stream) close() {
	st.mu.Lock()
	st.closed = true
	st.cond.Broadcast()
	st.mu.Unlock()
}

// Conn is one end of a buffered in-memory connection.
//
// See:
// - https://github.com/golang/go/issues/24205
// - https://github.com/golang/go/issues/34502
type Conn struct {
	addr Addr
	peer *Conn

	rx, tx *stream

	rdeadLine, wdeadLine *deadline
}

var _ transport.Conn = (*Conn)(nil)
var _ transport.BufferedConn = (*Conn)(nil)

// BufferedPipe creates a pair of connected pipes.
// Each direction buffers bufSize bytes. Deadlines are driven by clock.
// bufSize must be more than 0.
func BufferedPipe(name1, name2 string, clock clock.Clock, bufSize uint) (c1, c2 *Conn) {
	if bufSize == 0 {
		panic("buffer size cannot be 0")
	}

	forward, backward := newStream(int(bufSize)), newStream(int(bufSize))

	c1 = &Conn{
		addr:      Addr{Name: name1},
		rx:        backward,
		tx:        forward,
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
	}
	c2 = &Conn{
		addr:      Addr{Name: name2},
		rx:        forward,
		tx:        backward,
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
	}

	c1.peer, c2.peer = c2, c1
	return c1, c2
}

func (p *Conn) ReadBufSize() uint          { return uint(p.rx.size) }
func (p *Conn) WriteBufSize() uint         { return uint(p.tx.size) }
func (p *Conn) LocalAddr() transport.Addr  { return p.addr }
func (p *Conn) RemoteAddr() transport.Addr { return p.peer.addr }

// Close closes both directions. Bytes already buffered can still be read.
func (p *Conn) Close() error {
	p.rx.close()
	p.tx.close()
	return nil
}

func (p *Conn) Read(b []byte) (int, error) {
	st := p.rx

	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		if p.rdeadLine.exceeded() {
			return 0, transport.ErrDeadLineExceeded
		}
		if len(st.buf) > 0 {
			n := copy(b, st.buf)
			st.buf = st.buf[n:]
			if len(st.buf) == 0 {
				st.buf = st.buf[:0:0]
			}
			// A writer may be waiting for room.
			st.cond.Broadcast()
			return n, nil
		}
		if st.closed {
			return 0, transport.ErrConnClosed
		}
		st.cond.Wait()
	}
}

// Write blocks until all of b is buffered, the conn is closed
// or the write deadline passes.
func (p *Conn) Write(b []byte) (int, error) {
	st := p.tx

	st.wmu.Lock()
	defer st.wmu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	written := 0
	for {
		if p.wdeadLine.exceeded() {
			return written, transport.ErrDeadLineExceeded
		}
		if st.closed {
			return written, transport.ErrConnClosed
		}

		if room := st.size - len(st.buf); room > 0 && len(b) > 0 {
			n := min(room, len(b))
			st.buf = append(st.buf, b[:n]...)
			b = b[n:]
			written += n
			st.cond.Broadcast()
		}
		if len(b) == 0 {
			return written, nil
		}
		st.cond.Wait()
	}
}

func (p *Conn) SetReadDeadLine(t time.Time)  { p.rdeadLine.set(t, p.rx.wake) }
func (p *Conn) SetWriteDeadLine(t time.Time) { p.wdeadLine.set(t, p.tx.wake) }

func newDeadLine(clock clock.Clock) *deadline { return &deadline{clock: clock} }

type deadline struct {
	clock clock.Clock
	m     sync.Mutex

	timer *clock.Timer
	t     time.Time
}

func (d *deadline) set(t time.Time, onExceed func()) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.t = t

	if !t.IsZero() {
		// onExceed takes the stream lock, so it must not run under d.m.
		d.timer = d.clock.AfterFunc(d.clock.Until(t), onExceed)
	}
}

func (d *deadline) exceeded() bool {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t.IsZero() {
		return false
	}

	return d.clock.Until(d.t) <= 0
}
