// Package transport abstracts the byte streams the http server runs on.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConnClosed         = errors.New("connection is closed")
	ErrConnListenerClosed = errors.New("conn listener is closed")
	ErrDeadLineExceeded   = errors.New("deadline exceeded")
	ErrAddrAlreadyInUse   = errors.New("address already in use")
	ErrConnRefused        = errors.New("connection refused")
)

// Addr is an endpoint address. It's satisfied by [net.Addr].
type Addr interface {
	Network() string
	String() string
}

type Conn interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error

	LocalAddr() Addr
	RemoteAddr() Addr

	// A zero time clears the deadline.
	SetReadDeadLine(t time.Time)
	SetWriteDeadLine(t time.Time)
}

// BufferedConn is a conn with fixed size buffers on each direction.
type BufferedConn interface {
	Conn
	ReadBufSize() uint
	WriteBufSize() uint
}

type ConnListener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() Addr
}

type ConnDialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
