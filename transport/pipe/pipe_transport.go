package pipe

import (
	"context"
	"sync"

	"rawhttp/transport"

	"github.com/benbjohnson/clock"
)

type dialRequest struct {
	conn     *Conn
	accepted chan struct{}
}

// Transport connects in-memory listeners and dialers by name.
type Transport struct {
	listeners map[string]*Listener
	clock     clock.Clock
	bufSize   uint

	mu sync.Mutex
}

var _ transport.ConnDialer = (*Transport)(nil)

func NewTransport(clock clock.Clock, bufSize uint) *Transport {
	if bufSize == 0 {
		bufSize = DefaultBufSize
	}
	return &Transport{
		listeners: make(map[string]*Listener),
		clock:     clock,
		bufSize:   bufSize,
	}
}

func (t *Transport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	t.mu.Lock()
	listener, ok := t.listeners[addr]
	t.mu.Unlock()

	if !ok {
		return nil, transport.ErrConnRefused
	}

	local, remote := BufferedPipe("dialer", addr, t.clock, t.bufSize)

	req := dialRequest{
		conn:     remote,
		accepted: make(chan struct{}, 1),
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case listener.requests <- req:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case <-req.accepted:
	}

	return local, nil
}

func (t *Transport) Listen(addr string) (*Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.listeners[addr]; ok {
		return nil, transport.ErrAddrAlreadyInUse
	}

	l := &Listener{
		addr:      Addr{Name: addr},
		transport: t,
		requests:  make(chan dialRequest),
		closed:    make(chan struct{}),
	}
	t.listeners[addr] = l

	return l, nil
}

type Listener struct {
	addr      Addr
	transport *Transport

	requests chan dialRequest
	closed   chan struct{}
	once     sync.Once
}

var _ transport.ConnListener = (*Listener)(nil)

func (l *Listener) Addr() transport.Addr { return l.addr }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case req := <-l.requests:
		req.accepted <- struct{}{}
		return req.conn, nil
	}
}

func (l *Listener) Close() error {
	err := transport.ErrConnListenerClosed
	l.once.Do(func() {
		err = nil
		close(l.closed)

		l.transport.mu.Lock()
		delete(l.transport.listeners, l.addr.Name)
		l.transport.mu.Unlock()
	})
	return err
}
