package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"rawhttp/application/http/router"
	"rawhttp/application/http/wire"
	"rawhttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type Server struct {
	l transport.ConnListener

	cancel func()
	wg     sync.WaitGroup

	logger *slog.Logger
	opts   Options

	pipeline   *router.Pipeline
	serializer wire.Serializer
	clock      clock.Clock

	sessions *xsync.MapOf[uint64, *session]
	lastID   atomic.Uint64
}

func New(
	l transport.ConnListener,
	logger *slog.Logger,
	clock clock.Clock,
	pipeline *router.Pipeline,
	opts Options,
) *Server {
	return &Server{
		l:        l,
		logger:   logger,
		opts:     opts,
		pipeline: pipeline,
		clock:    clock,
		serializer: wire.Serializer{
			Clock:            clock,
			KeepAliveTimeout: opts.Serve.Timeout.IdleTimeout,
			KeepAliveMax:     opts.KeepAlive.Max,
		},
		sessions: xsync.NewMapOf[uint64, *session](),
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			ss, err := s.acceptConn(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrConnListenerClosed) {
					s.logger.Error(
						"unexpected error when accepting connection",
						"error", err.Error(),
					)
				}
				return
			}

			s.sessions.Store(ss.id, ss)
			if ctx.Err() != nil {
				// Close ran between accept and store.
				ss.conn.Close()
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.sessions.Delete(ss.id)
				ss.start(ctx)
			}()
		}
	}()
}

func (s *Server) acceptConn(ctx context.Context) (*session, error) {
	con, err := s.l.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listening for connection")
	}

	ss := &session{
		id:   s.lastID.Add(1),
		conn: con,
		framer: wire.NewFramer(wire.FramerOptions{
			MaxHeaderBytes: s.opts.Limits.MaxHeaderBytes,
			MaxBodyBytes:   s.opts.Limits.MaxBodyBytes,
		}),
		pipeline:   s.pipeline,
		serializer: s.serializer,
		opts:       s.opts,
		logger:     s.logger.With("conn", con.RemoteAddr().String()),
		clock:      s.clock,
	}

	return ss, nil
}

// Sessions returns the number of connections being served.
func (s *Server) Sessions() int { return s.sessions.Size() }

// Close stops accepting, closes every live connection
// and waits for their sessions to end.
func (s *Server) Close() error {
	if s.cancel == nil {
		return errors.New("server is not started")
	}
	s.cancel()

	err := s.l.Close()
	if errors.Is(err, transport.ErrConnListenerClosed) {
		err = nil
	}

	s.sessions.Range(func(_ uint64, ss *session) bool {
		ss.conn.Close()
		return true
	})

	s.wg.Wait()
	return errors.Wrap(err, "closing listener")
}
