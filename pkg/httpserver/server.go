package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Server is a graceful wrapper around http.Server.
type Server struct {
	opts options

	mu   sync.Mutex
	srv  *http.Server
	once sync.Once
	err  error
	// stopped is closed once Shutdown has finished.
	stopped chan struct{}
}

func New(opts ...Option) *Server {
	o := options{
		Config: Config{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With(logger.Component("httpserver"))
	return &Server{opts: o, stopped: make(chan struct{})}
}

// NewFromConfig applies the non-zero fields of cfg, then opts.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	base := []Option{func(o *options) {
		if cfg.Addr != "" {
			o.Addr = cfg.Addr
		}
		o.ReadTimeout = cfg.ReadTimeout
		o.WriteTimeout = cfg.WriteTimeout
		o.IdleTimeout = cfg.IdleTimeout
		if cfg.ShutdownTimeout > 0 {
			o.ShutdownTimeout = cfg.ShutdownTimeout
		}
	}}
	return New(append(base, opts...)...)
}

// Run serves handler and blocks until ctx is done, a termination signal
// arrives, Shutdown is called or the listener fails. A listener failure is
// wrapped with ErrStart.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already running"))
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, err)
	}
	s.srv = &http.Server{
		Handler:           handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.srv
	s.mu.Unlock()

	addr := ln.Addr().String()
	s.opts.log.InfoContext(ctx, "http server listening", slog.String("addr", addr))
	for _, h := range s.opts.startHooks {
		h(addr)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			<-errCh
			return err
		}
		err = <-errCh
	case err = <-errCh:
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(ErrStart, err)
	}
	<-s.stopped
	return s.shutdownErr()
}

// Shutdown stops accepting requests, waits for active ones and runs the stop
// hooks, all within the shutdown timeout. Repeated calls return the first
// result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		defer close(s.stopped)
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		for _, h := range s.opts.stopHooks {
			if err := h(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.setErr(errors.Join(append([]error{ErrShutdown}, errs...)...))
			s.opts.log.ErrorContext(ctx, "http server shutdown", logger.Error(s.shutdownErr()))
			return
		}
		s.opts.log.InfoContext(ctx, "http server stopped")
	})
	return s.shutdownErr()
}

func (s *Server) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Server) shutdownErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
