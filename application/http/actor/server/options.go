package server

import "time"

const defaultReadBufferSize = 4 << 10

type Options struct {
	Serve     ServeOptions
	KeepAlive KeepAliveOptions
	Limits    LimitOptions
}

type ServeOptions struct {
	Timeout TimeoutOptions

	// ReadBufferSize is the amount read from the connection at once.
	ReadBufferSize int
}

type TimeoutOptions struct {
	// IdleTimeout bounds every read. A connection that stays silent
	// for this long is closed, even in the middle of a request.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

type KeepAliveOptions struct {
	// Max is the number of requests served on one connection.
	// Zero means unlimited.
	Max uint
}

type LimitOptions struct {
	MaxHeaderBytes int
	MaxBodyBytes   uint64
}

func DefaultOptions() Options {
	return Options{
		Serve: ServeOptions{
			Timeout: TimeoutOptions{
				IdleTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			},
			ReadBufferSize: defaultReadBufferSize,
		},
		KeepAlive: KeepAliveOptions{Max: 100},
		Limits: LimitOptions{
			MaxHeaderBytes: 64 << 10,
			MaxBodyBytes:   10 << 20,
		},
	}
}

func (o Options) readBufferSize() int {
	if o.Serve.ReadBufferSize <= 0 {
		return defaultReadBufferSize
	}
	return o.Serve.ReadBufferSize
}
