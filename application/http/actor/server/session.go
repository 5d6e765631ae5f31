package server

import (
	"context"
	"log/slog"
	"strconv"

	"rawhttp/application/http"
	"rawhttp/application/http/router"
	"rawhttp/application/http/status"
	"rawhttp/application/http/wire"
	"rawhttp/application/util/rule"
	iolib "rawhttp/lib/io"
	"rawhttp/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var ErrIdleTimeoutExceeded = errors.New("idle timeout exceeded")

// session serves the requests of a single connection in arrival order.
type session struct {
	id   uint64
	conn transport.Conn

	framer     *wire.Framer
	pipeline   *router.Pipeline
	serializer wire.Serializer

	opts   Options
	logger *slog.Logger
	clock  clock.Clock

	served uint
}

func (ss *session) start(ctx context.Context) {
	defer ss.framer.Release()
	defer ss.conn.Close()

	err := ss.serve(ctx)
	switch {
	case err == nil:
		ss.logger.Debug("closing connection", "served", ss.served)
	case errors.Is(err, context.Canceled):
	case errors.Is(err, ErrIdleTimeoutExceeded):
		ss.logger.Info("idle timeout exceeded")
	case errors.Is(err, transport.ErrConnClosed):
		ss.logger.Debug("connection closed by peer")
	default:
		ss.logger.Error("unexpected error while serving connection", "error", err.Error())
	}
}

func (ss *session) serve(ctx context.Context) error {
	secure := false
	if sc, ok := ss.conn.(interface{ Secure() bool }); ok {
		secure = sc.Secure()
	}
	hctx := router.NewHandleContext(ctx, ss.conn.RemoteAddr(), secure)

	for {
		// Every request that is already buffered is answered before reading again.
		for {
			req, err := ss.framer.Next()
			if errors.Is(err, http.ErrIncompleteFrame) {
				break
			}
			if err != nil {
				return ss.reject(err)
			}

			keepAlive, err := ss.exchange(hctx, req)
			if err != nil {
				return err
			}
			if !keepAlive {
				return nil
			}
		}

		if ss.framer.TakeContinue() {
			if err := ss.writeContinue(); err != nil {
				return err
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ss.read(); err != nil {
			return err
		}
	}
}

func (ss *session) read() error {
	if timeout := ss.opts.Serve.Timeout.IdleTimeout; timeout > 0 {
		ss.conn.SetReadDeadLine(ss.clock.Now().Add(timeout))
	}

	n, err := ss.framer.Fill(ss.conn, ss.opts.readBufferSize())
	if n > 0 {
		// The error shows up again on the next read.
		return nil
	}
	if err != nil {
		if errors.Is(err, transport.ErrDeadLineExceeded) {
			return ErrIdleTimeoutExceeded
		}
		return errors.Wrap(err, "reading request")
	}
	return nil
}

func (ss *session) exchange(hctx *router.HandleContext, req *http.Request) (keepAlive bool, err error) {
	ss.served++

	res := ss.pipeline.Dispatch(hctx, req)

	keepAlive = !req.WantsClose() &&
		!rule.HasToken(res.Header.Get("Connection"), "close") &&
		(ss.opts.KeepAlive.Max == 0 || ss.served < ss.opts.KeepAlive.Max)

	if req.IsHead() {
		chunked := rule.HasToken(res.Header.Get("Transfer-Encoding"), "chunked")
		if !chunked && status.AllowsBody(res.Status) {
			res.Header.SetDefault("Content-Length", strconv.Itoa(len(res.Body)))
		}
		res.Body = nil
		return keepAlive, ss.write(res, keepAlive, true)
	}

	return keepAlive, ss.write(res, keepAlive, false)
}

// reject answers a request that could not be framed and ends the session.
func (ss *session) reject(cause error) error {
	code := status.BadRequest.Code
	if errors.Is(cause, http.ErrPayloadTooLarge) {
		code = status.ContentTooLarge.Code
	}

	ss.logger.Info("rejecting request", "status", code, "error", cause.Error())

	if err := ss.write(http.StatusText(code), false, false); err != nil {
		return err
	}
	return nil
}

func (ss *session) write(res *http.Response, keepAlive, headOnly bool) error {
	if timeout := ss.opts.Serve.Timeout.WriteTimeout; timeout > 0 {
		ss.conn.SetWriteDeadLine(ss.clock.Now().Add(timeout))
	}

	var err error
	if headOnly {
		_, err = ss.serializer.WriteHeadTo(ss.conn, res, keepAlive)
	} else {
		_, err = ss.serializer.WriteTo(ss.conn, res, keepAlive)
	}
	return errors.Wrap(err, "writing response")
}

func (ss *session) writeContinue() error {
	if timeout := ss.opts.Serve.Timeout.WriteTimeout; timeout > 0 {
		ss.conn.SetWriteDeadLine(ss.clock.Now().Add(timeout))
	}

	_, err := iolib.WriteFull(ss.conn, wire.Interim100())
	return errors.Wrap(err, "writing interim response")
}
