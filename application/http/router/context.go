package router

import (
	"context"

	"rawhttp/transport"
)

// HandleContext carries the connection level information of a request.
type HandleContext struct {
	ctx        context.Context
	remoteAddr transport.Addr
	secure     bool
}

func NewHandleContext(ctx context.Context, remoteAddr transport.Addr, secure bool) *HandleContext {
	return &HandleContext{ctx: ctx, remoteAddr: remoteAddr, secure: secure}
}

// Context is cancelled when the server shuts down.
func (c *HandleContext) Context() context.Context  { return c.ctx }
func (c *HandleContext) RemoteAddr() transport.Addr { return c.remoteAddr }

// Secure reports whether the request came over TLS.
func (c *HandleContext) Secure() bool { return c.secure }
