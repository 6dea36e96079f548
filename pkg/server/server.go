package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Listen on a server that is already bound.
var ErrAlreadyRunning = errors.New("server is already running")

// Options configures the underlying http.Server.
type Options struct {
	// Name identifies the listener in logs ("gateway", "control").
	Name string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DrainTimeout bounds Shutdown's wait for in-flight requests. Zero waits
	// for the context given to Shutdown only.
	DrainTimeout time.Duration
}

// Server is one HTTP listener. Binding and serving are separate steps so a
// port conflict is reported synchronously by Listen.
//
// No write timeout is set: gateway responses may be unbounded streams.
type Server struct {
	opts    Options
	handler http.Handler
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	cancel     context.CancelFunc
	done       chan struct{}
	serveErr   error
	running    bool
}

// New creates a server for handler. It does not bind.
func New(handler http.Handler, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "http"
	}
	return &Server{
		opts:    opts,
		handler: handler,
		logger:  slog.Default().With("component", "server", "listener", opts.Name),
	}
}

// Listen binds addr and starts serving in the background. Bind failures are
// returned as is so callers can classify them.
func (s *Server) Listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		MaxHeaderBytes:    s.opts.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.serveErr = nil
	s.running = true

	go s.serve(s.httpServer, ln, s.done)

	s.logger.Info("listener started", "address", ln.Addr().String())
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("listener failed", "error", err)
		s.mu.Lock()
		s.serveErr = err
		s.running = false
		s.mu.Unlock()
	}
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the drain timeout. Requests still running after that have their
// contexts cancelled and their connections closed. Shutdown on a stopped
// server is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, done := s.httpServer, s.cancel, s.done
	wasRunning := s.running
	s.running = false
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	drainCtx := ctx
	if s.opts.DrainTimeout > 0 {
		var stop context.CancelFunc
		drainCtx, stop = context.WithTimeout(ctx, s.opts.DrainTimeout)
		defer stop()
	}

	var shutdownErr error
	if err := srv.Shutdown(drainCtx); err != nil {
		s.logger.Warn("drain timed out, cancelling in-flight requests", "error", err)
		cancel()
		if cerr := srv.Close(); cerr != nil {
			shutdownErr = fmt.Errorf("close %s listener: %w", s.opts.Name, cerr)
		}
	}
	cancel()
	<-done

	if wasRunning {
		s.logger.Info("listener stopped")
	}
	return shutdownErr
}

// Addr returns the bound address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the server is bound and serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Err returns the error that stopped serving unexpectedly, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serveErr
}

// Handler returns the served handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
