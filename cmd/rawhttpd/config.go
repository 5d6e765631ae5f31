package main

import (
	"flag"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const envPrefix = "RAWHTTP_"

type config struct {
	addr    string
	tlsAddr string
	tlsCert string
	tlsKey  string

	logFormat string
	logLevel  slog.Level

	production bool
	staticDir  string

	reusePort bool
	maxConns  int

	idleTimeout    time.Duration
	writeTimeout   time.Duration
	keepAliveMax   uint
	maxHeaderBytes int
	maxBodyBytes   uint64
}

// parseConfig reads flags from args. A flag that is not given
// falls back to the RAWHTTP_ variable of the same name, e.g. RAWHTTP_TLS_ADDR.
func parseConfig(args []string, getenv func(string) string, output io.Writer) (config, error) {
	env := envLookup{getenv: getenv}
	var cfg config

	fs := flag.NewFlagSet("rawhttpd", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.addr, "addr", env.str("ADDR", ":8080"), "plain HTTP listen address, empty to disable")
	fs.StringVar(&cfg.tlsAddr, "tls-addr", env.str("TLS_ADDR", ""), "HTTPS listen address, empty to disable")
	fs.StringVar(&cfg.tlsCert, "tls-cert", env.str("TLS_CERT", "server.crt"), "PEM certificate file")
	fs.StringVar(&cfg.tlsKey, "tls-key", env.str("TLS_KEY", "server.key"), "PEM private key file")

	fs.StringVar(&cfg.logFormat, "log-format", env.str("LOG_FORMAT", "text"), "log format, text or json")
	logLevel := fs.String("log-level", env.str("LOG_LEVEL", "info"), "minimum log level")

	fs.BoolVar(&cfg.production, "production", env.boolean("PRODUCTION", false), "hide fault details from responses")
	fs.StringVar(&cfg.staticDir, "static", env.str("STATIC", ""), "directory served as static files")

	fs.BoolVar(&cfg.reusePort, "reuseport", env.boolean("REUSEPORT", false), "listen with SO_REUSEPORT")
	fs.IntVar(&cfg.maxConns, "max-conns", env.integer("MAX_CONNS", 0), "bound on open connections per listener, 0 for none")

	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", env.duration("IDLE_TIMEOUT", 5*time.Second), "read idle timeout")
	fs.DurationVar(&cfg.writeTimeout, "write-timeout", env.duration("WRITE_TIMEOUT", 10*time.Second), "response write timeout")
	fs.UintVar(&cfg.keepAliveMax, "keepalive-max", uint(env.integer("KEEPALIVE_MAX", 100)), "requests per connection, 0 for unlimited")
	fs.IntVar(&cfg.maxHeaderBytes, "max-header-bytes", env.integer("MAX_HEADER_BYTES", 64<<10), "header block limit")
	fs.Uint64Var(&cfg.maxBodyBytes, "max-body-bytes", uint64(env.integer("MAX_BODY_BYTES", 10<<20)), "request body limit")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if env.err != nil {
		return config{}, env.err
	}

	if err := cfg.logLevel.UnmarshalText([]byte(*logLevel)); err != nil {
		return config{}, errors.Wrap(err, "parsing log level")
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.addr == "" && c.tlsAddr == "" {
		return errors.New("no listen address configured")
	}
	if c.tlsAddr != "" && (c.tlsCert == "" || c.tlsKey == "") {
		return errors.New("tls-addr requires tls-cert and tls-key")
	}
	if c.logFormat != "text" && c.logFormat != "json" {
		return errors.Errorf("unknown log format %q", c.logFormat)
	}
	if c.maxConns < 0 {
		return errors.Errorf("max-conns must not be negative: %d", c.maxConns)
	}
	if c.maxHeaderBytes <= 0 {
		return errors.Errorf("max-header-bytes must be positive: %d", c.maxHeaderBytes)
	}
	if c.maxBodyBytes > 1<<31-1 {
		return errors.Errorf("max-body-bytes is too large: %d", c.maxBodyBytes)
	}
	return nil
}

// envLookup reads defaults from the environment.
// The first malformed value is kept in err.
type envLookup struct {
	getenv func(string) string
	err    error
}

func (e *envLookup) str(key, def string) string {
	if v := e.getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func (e *envLookup) boolean(key string, def bool) bool {
	v := e.getenv(envPrefix + key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envLookup) integer(key string, def int) int {
	v := e.getenv(envPrefix + key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		if err == nil {
			err = errors.New("negative value")
		}
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envLookup) duration(key string, def time.Duration) time.Duration {
	v := e.getenv(envPrefix + key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envLookup) fail(key string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(err, "parsing %s%s", envPrefix, key)
	}
}
