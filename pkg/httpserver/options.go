package httpserver

import (
	"log/slog"
	"time"
)

// Option configures the HTTP server.
type Option func(*options)

type options struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	onListen        []func(addr string)
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: addr cannot be empty")
	}
	return func(o *options) { o.addr = addr }
}

// WithReadTimeout limits reading one request.
func WithReadTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: read timeout must be > 0")
	}
	return func(o *options) { o.readTimeout = d }
}

// WithWriteTimeout limits writing one response.
func WithWriteTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: write timeout must be > 0")
	}
	return func(o *options) { o.writeTimeout = d }
}

// WithIdleTimeout limits keep-alive idling.
func WithIdleTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: idle timeout must be > 0")
	}
	return func(o *options) { o.idleTimeout = d }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("httpserver: shutdown timeout must be > 0")
	}
	return func(o *options) { o.shutdownTimeout = d }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithListenHook registers fn to run with the bound address once the
// server accepts connections.
func WithListenHook(fn func(addr string)) Option {
	if fn == nil {
		panic("httpserver: nil listen hook")
	}
	return func(o *options) { o.onListen = append(o.onListen, fn) }
}
