// Package router dispatches requests through a middleware chain
// into handlers registered by method and exact path.
package router

import (
	"fmt"
	"log/slog"
	"strings"

	"rawhttp/application/http"
	"rawhttp/application/http/status"

	"github.com/pkg/errors"
)

type HandleFunc func(c *HandleContext, req *http.Request) *http.Response

// Next runs the rest of the chain. Calling it more than once
// returns the same response without running the chain again.
type Next func() *http.Response

type Middleware func(c *HandleContext, req *http.Request, next Next) *http.Response

// Builder collects routes and middlewares.
// It's not safe for concurrent use. Use [Builder.Build] to get a [Pipeline]
// that is immutable and can be shared between connections.
type Builder struct {
	middlewares []Middleware
	routes      map[string]map[string]HandleFunc
	// methods registered on each path, in registration order.
	methods map[string][]string
}

func NewBuilder() *Builder {
	return &Builder{
		routes:  make(map[string]map[string]HandleFunc),
		methods: make(map[string][]string),
	}
}

// Use appends middlewares. They run in the order they were added.
func (b *Builder) Use(mws ...Middleware) *Builder {
	b.middlewares = append(b.middlewares, mws...)
	return b
}

// AddRoute registers h for method and the exact path.
// Registering the same pair again replaces the handler.
func (b *Builder) AddRoute(method, path string, h HandleFunc) *Builder {
	method = strings.ToUpper(method)

	byPath, ok := b.routes[method]
	if !ok {
		byPath = make(map[string]HandleFunc)
		b.routes[method] = byPath
	}
	if _, exists := byPath[path]; !exists {
		b.methods[path] = append(b.methods[path], method)
	}
	byPath[path] = h

	return b
}

func (b *Builder) Get(path string, h HandleFunc) *Builder    { return b.AddRoute("GET", path, h) }
func (b *Builder) Post(path string, h HandleFunc) *Builder   { return b.AddRoute("POST", path, h) }
func (b *Builder) Put(path string, h HandleFunc) *Builder    { return b.AddRoute("PUT", path, h) }
func (b *Builder) Patch(path string, h HandleFunc) *Builder  { return b.AddRoute("PATCH", path, h) }
func (b *Builder) Delete(path string, h HandleFunc) *Builder { return b.AddRoute("DELETE", path, h) }

type Options struct {
	Logger *slog.Logger
	// Production hides fault details from response bodies.
	Production bool
}

// Build snapshots the current routes and middlewares.
// Later changes to the builder don't affect the returned pipeline.
func (b *Builder) Build(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	p := &Pipeline{
		opts:        opts,
		middlewares: append([]Middleware(nil), b.middlewares...),
		routes:      make(map[string]map[string]HandleFunc, len(b.routes)),
		allow:       make(map[string]string, len(b.methods)),
	}

	for method, byPath := range b.routes {
		clone := make(map[string]HandleFunc, len(byPath))
		for path, h := range byPath {
			clone[path] = h
		}
		p.routes[method] = clone
	}

	for path, methods := range b.methods {
		p.allow[path] = allowValue(methods)
	}

	return p
}

// allowValue lists methods in registration order, followed by
// HEAD when GET is present and OPTIONS.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-10.2.1
func allowValue(methods []string) string {
	list := append([]string(nil), methods...)
	has := func(m string) bool {
		for _, v := range list {
			if v == m {
				return true
			}
		}
		return false
	}

	if has("GET") && !has("HEAD") {
		list = append(list, "HEAD")
	}
	if !has("OPTIONS") {
		list = append(list, "OPTIONS")
	}

	return strings.Join(list, ", ")
}

// Pipeline is an immutable dispatcher built by [Builder].
type Pipeline struct {
	opts        Options
	middlewares []Middleware
	routes      map[string]map[string]HandleFunc
	allow       map[string]string
}

var errNilResponse = errors.Wrap(http.ErrHandlerFault, "nil response is forbidden")

// Dispatch runs req through the middlewares and the matching handler.
// A panic or a nil response anywhere in the chain becomes 500 Internal Server Error.
// Handler faults are turned into the 500 before the middlewares see the response,
// so they can still decorate it.
func (p *Pipeline) Dispatch(c *HandleContext, req *http.Request) (res *http.Response) {
	defer func() {
		if e := recover(); e != nil {
			res = p.fault(req, e)
		}
	}()

	return p.run(c, req, 0)
}

func (p *Pipeline) run(c *HandleContext, req *http.Request, idx int) *http.Response {
	var res *http.Response
	if idx == len(p.middlewares) {
		res = p.handle(c, req)
	} else {
		var (
			done bool
			memo *http.Response
		)
		next := func() *http.Response {
			if !done {
				memo = p.run(c, req, idx+1)
				done = true
			}
			return memo
		}
		res = p.middlewares[idx](c, req, next)
	}

	if res == nil {
		panic(errNilResponse)
	}
	return res
}

// handle runs the final link of the chain.
func (p *Pipeline) handle(c *HandleContext, req *http.Request) (res *http.Response) {
	defer func() {
		if e := recover(); e != nil {
			res = p.fault(req, e)
		}
	}()

	res = p.resolve(c, req)
	if res == nil {
		res = p.fault(req, errNilResponse)
	}
	return res
}

// resolve finds the handler of req.
//
// Resolution order is exact match, HEAD served by GET,
// OPTIONS answered with Allow, then 405 and 404.
func (p *Pipeline) resolve(c *HandleContext, req *http.Request) *http.Response {
	method := strings.ToUpper(req.Method)

	if h, ok := p.routes[method][req.Path]; ok {
		return h(c, req)
	}

	if method == "HEAD" {
		if h, ok := p.routes["GET"][req.Path]; ok {
			return h(c, req)
		}
	}

	allow, pathExists := p.allow[req.Path]
	if !pathExists {
		return http.StatusText(status.NotFound.Code)
	}

	if method == "OPTIONS" {
		res := http.NewResponse(status.NoContent.Code)
		res.Header.Set("Allow", allow)
		return res
	}

	res := http.StatusText(status.MethodNotAllowed.Code)
	res.Header.Set("Allow", allow)
	return res
}

func (p *Pipeline) fault(req *http.Request, recovered any) *http.Response {
	err, ok := recovered.(error)
	if !ok {
		err = errors.Errorf("%v", recovered)
	}
	if !errors.Is(err, http.ErrHandlerFault) {
		err = errors.Wrap(http.ErrHandlerFault, err.Error())
	}

	p.opts.Logger.Error("Handler fault",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("error", err.Error()),
	)

	if p.opts.Production {
		return http.StatusText(status.InternalServerError.Code)
	}
	return http.Text(status.InternalServerError.Code, fmt.Sprintf("Internal Server Error: %s", err))
}
