// Command rawhttpd serves HTTP/1.1 over plain TCP and TLS.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rawhttp/application/http/actor/server"
	"rawhttp/application/http/router"
	"rawhttp/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "rawhttpd:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, clock.New()); err != nil {
		logger.Error("Server failed", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	if cfg.logFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func serverOptions(cfg config) server.Options {
	opts := server.DefaultOptions()
	opts.Serve.Timeout.IdleTimeout = cfg.idleTimeout
	opts.Serve.Timeout.WriteTimeout = cfg.writeTimeout
	opts.KeepAlive.Max = cfg.keepAliveMax
	opts.Limits.MaxHeaderBytes = cfg.maxHeaderBytes
	opts.Limits.MaxBodyBytes = cfg.maxBodyBytes
	return opts
}

// run serves until ctx is done, then closes every server.
func run(ctx context.Context, cfg config, logger *slog.Logger, clock clock.Clock) error {
	pipeline := newPipeline(cfg, logger, clock)

	servers, err := start(cfg, logger, clock, pipeline)
	defer func() {
		for _, srv := range servers {
			if err := srv.Close(); err != nil {
				logger.Error("Closing server", "error", err.Error())
			}
		}
	}()
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return nil
}

func start(cfg config, logger *slog.Logger, clock clock.Clock, pipeline *router.Pipeline) ([]*server.Server, error) {
	var servers []*server.Server

	listen := func(addr string, secure bool) error {
		opts := tcp.ListenOptions{
			Addr:      addr,
			ReusePort: cfg.reusePort,
			MaxConns:  cfg.maxConns,
		}
		if secure {
			tlsConfig, err := tcp.LoadTLSConfig(cfg.tlsCert, cfg.tlsKey)
			if err != nil {
				return err
			}
			opts.TLS = tlsConfig
		}

		l, err := tcp.Listen(opts)
		if err != nil {
			return err
		}

		srv := server.New(l, logger.With("listener", l.Addr().String()), clock, pipeline, serverOptions(cfg))
		srv.Start()
		servers = append(servers, srv)

		logger.Info("Listening", "addr", l.Addr().String(), "tls", secure)
		return nil
	}

	if cfg.addr != "" {
		if err := listen(cfg.addr, false); err != nil {
			return servers, errors.Wrap(err, "starting HTTP listener")
		}
	}
	if cfg.tlsAddr != "" {
		if err := listen(cfg.tlsAddr, true); err != nil {
			return servers, errors.Wrap(err, "starting HTTPS listener")
		}
	}

	return servers, nil
}
