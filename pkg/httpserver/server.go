package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// Server runs an http.Server until its context is done and then shuts it
// down gracefully.
type Server struct {
	opts *options

	mu  sync.Mutex
	srv *http.Server
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	o := &options{
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
		logger:          logger.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Server{opts: o}
}

// Run serves handler and blocks until ctx is done or the listener fails.
// Listen failures are joined with ErrStart.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	srv := &http.Server{
		Addr:         s.opts.addr,
		Handler:      handler,
		ReadTimeout:  s.opts.readTimeout,
		WriteTimeout: s.opts.writeTimeout,
		IdleTimeout:  s.opts.idleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.srv = srv
	s.mu.Unlock()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		s.reset()
		return errors.Join(ErrStart, err)
	}

	addr := ln.Addr().String()
	s.opts.logger.InfoContext(ctx, "http server listening", "addr", addr)
	for _, fn := range s.opts.onListen {
		fn(addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = s.Shutdown(context.WithoutCancel(ctx))
		if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && runErr == nil {
			runErr = serveErr
		}
	case serveErr := <-errCh:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			runErr = errors.Join(ErrStart, serveErr)
		}
	}

	s.opts.logger.InfoContext(ctx, "http server stopped", "addr", addr)
	return runErr
}

// Shutdown stops a running server gracefully. It is a no-op when the server
// is not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	s.reset()
	if err != nil {
		s.opts.logger.ErrorContext(ctx, "http server shutdown failed", logger.Error(err))
		return errors.Join(ErrShutdown, err)
	}
	return nil
}

func (s *Server) reset() {
	s.mu.Lock()
	s.srv = nil
	s.mu.Unlock()
}
