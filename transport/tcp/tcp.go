// Package tcp adapts operating system TCP sockets,
// optionally secured with TLS, to [transport.Conn].
package tcp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"rawhttp/transport"

	"github.com/pkg/errors"
	"github.com/valyala/tcplisten"
	"golang.org/x/net/netutil"
)

type ListenOptions struct {
	Addr string
	// TLS wraps accepted connections when not nil.
	TLS *tls.Config

	// Socket options applied through tcplisten. Setting any of them
	// restricts the listener to tcp4.
	ReusePort   bool
	DeferAccept bool
	FastOpen    bool

	// MaxConns bounds simultaneously open connections. Zero means no bound.
	MaxConns int
}

type Listener struct {
	l      net.Listener
	secure bool
}

var _ transport.ConnListener = (*Listener)(nil)

func Listen(opts ListenOptions) (*Listener, error) {
	var (
		l   net.Listener
		err error
	)

	if opts.ReusePort || opts.DeferAccept || opts.FastOpen {
		cfg := tcplisten.Config{
			ReusePort:   opts.ReusePort,
			DeferAccept: opts.DeferAccept,
			FastOpen:    opts.FastOpen,
		}
		l, err = cfg.NewListener("tcp4", opts.Addr)
	} else {
		l, err = net.Listen("tcp", opts.Addr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", opts.Addr)
	}

	if opts.MaxConns > 0 {
		l = netutil.LimitListener(l, opts.MaxConns)
	}
	if opts.TLS != nil {
		l = tls.NewListener(l, opts.TLS)
	}

	return &Listener{l: l, secure: opts.TLS != nil}, nil
}

func (l *Listener) Addr() transport.Addr { return l.l.Addr() }

// Accept waits for the next connection.
// Cancelling ctx closes the listener.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.l.Close() })
	defer stop()

	c, err := l.l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		return nil, errors.Wrap(err, "accepting connection")
	}

	return NewConn(c), nil
}

func (l *Listener) Close() error {
	if err := l.l.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrConnListenerClosed
		}
		return err
	}
	return nil
}

// Dialer connects to TCP listeners. It's mostly used by tests and tools.
type Dialer struct {
	// TLS makes the dialer start a TLS handshake when not nil.
	TLS     *tls.Config
	Timeout time.Duration
}

var _ transport.ConnDialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}

	if d.TLS != nil {
		td := tls.Dialer{NetDialer: &nd, Config: d.TLS}
		c, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "dialing %s", addr)
		}
		return NewConn(c), nil
	}

	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return NewConn(c), nil
}

// Conn maps [net.Conn] errors onto the transport ones.
type Conn struct {
	c net.Conn
}

var _ transport.Conn = (*Conn)(nil)

func NewConn(c net.Conn) *Conn { return &Conn{c: c} }

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.c.Read(p)
	return n, convertErr(err)
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.c.Write(p)
	return n, convertErr(err)
}

func (c *Conn) Close() error {
	if err := c.c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (c *Conn) LocalAddr() transport.Addr  { return c.c.LocalAddr() }
func (c *Conn) RemoteAddr() transport.Addr { return c.c.RemoteAddr() }

// The errors are dropped since they only report a closed conn,
// which the next Read or Write reports anyway.
func (c *Conn) SetReadDeadLine(t time.Time)  { _ = c.c.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { _ = c.c.SetWriteDeadline(t) }

// Secure reports whether the connection runs over TLS.
func (c *Conn) Secure() bool {
	_, ok := c.c.(*tls.Conn)
	return ok
}

func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return transport.ErrConnClosed
	}
	return err
}
