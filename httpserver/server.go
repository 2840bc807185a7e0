// Package httpserver holds the HTTP plumbing shared by the shell front and
// remote hosts: a chi router with the common middleware stack and a server
// with graceful shutdown.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/najoast/mfshell/config"
)

// Server wraps http.Server with context-driven shutdown.
type Server struct {
	name         string
	server       *http.Server
	logger       *zap.Logger
	shutdownOnce sync.Once

	mu   sync.Mutex
	addr net.Addr
}

// New creates a stopped server for handler.
func New(name string, cfg config.HTTPConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		name: name,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger.With(zap.String("server", name)),
	}
}

// Start listens and serves until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%s server: %w", s.name, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or serving fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.Stop(shutdownCtx)
		<-errChan
		return err
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
}

// Stop shuts the server down gracefully. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s server shutdown: %w", s.name, err)
			s.logger.Error("server shutdown error", zap.Error(err))
			return
		}
		s.logger.Info("server stopped")
	})
	return shutdownErr
}

// Addr returns the bound address once serving has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
