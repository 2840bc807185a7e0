package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/loader"
	"github.com/najoast/mfshell/router"
)

// ErrNotStarted is returned when the shell is used before Start.
var ErrNotStarted = errors.New("shell not started")

// ShellShared lists the libraries the shell itself provides to remotes, by
// version. They are activated as singletons before any remote loads.
var ShellShared = map[string]string{
	"go.uber.org/zap":                      "1.27.1",
	"github.com/najoast/mfshell/lifecycle": "1.0.0",
}

// Shell is the host application: a loader, a resolver and optionally an
// HTTP front, managed as services.
type Shell struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	lifecycle *LifecycleManager

	loader *loaderService
	router *routerService
	front  *frontService

	mutex   sync.Mutex
	running bool
}

// Option configures a Shell.
type Option func(*shellOptions)

type shellOptions struct {
	logger    *zap.Logger
	fetcher   loader.Fetcher
	serveHTTP bool
}

// WithLogger sets the shell's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *shellOptions) { o.logger = logger }
}

// WithFetcher replaces the fetcher derived from configuration.
func WithFetcher(f loader.Fetcher) Option {
	return func(o *shellOptions) { o.fetcher = f }
}

// WithHTTPFront enables the HTTP front.
func WithHTTPFront() Option {
	return func(o *shellOptions) { o.serveHTTP = true }
}

// New creates a stopped shell for cfg.
func New(cfg *config.Config, opts ...Option) (*Shell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	o := shellOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Shell{
		cfg:       cfg,
		logger:    o.logger,
		registry:  reg,
		lifecycle: NewLifecycleManager(o.logger.Named("lifecycle")),
	}
	s.loader = &loaderService{shell: s, fetcher: o.fetcher, metrics: loader.NewMetrics(reg)}
	s.router = &routerService{shell: s, metrics: router.NewMetrics(reg)}

	if err := s.lifecycle.Register(s.loader); err != nil {
		return nil, err
	}
	if err := s.lifecycle.Register(s.router, s.loader.Name()); err != nil {
		return nil, err
	}
	if o.serveHTTP {
		s.front = &frontService{shell: s}
		if err := s.lifecycle.Register(s.front, s.router.Name()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Config returns the shell's configuration.
func (s *Shell) Config() *config.Config {
	return s.cfg
}

// Lifecycle returns the shell's lifecycle manager.
func (s *Shell) Lifecycle() *LifecycleManager {
	return s.lifecycle
}

// Metrics returns the shell's metrics registry.
func (s *Shell) Metrics() *prometheus.Registry {
	return s.registry
}

// Start starts the services.
func (s *Shell) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("shell is already running")
	}
	if err := s.lifecycle.Start(ctx); err != nil {
		return err
	}
	s.running = true
	s.logger.Info("shell started",
		zap.String("name", s.cfg.App.Name),
		zap.String("version", s.cfg.App.Version),
		zap.Int("routes", len(s.cfg.Shell.Routes)),
		zap.Bool("embedded", s.cfg.Shell.Embedded))
	return nil
}

// Stop stops the services. It is a no-op on a stopped shell.
func (s *Shell) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.lifecycle.Stop(stopCtx)
}

// Run starts the shell and blocks until ctx is cancelled or the process
// receives SIGINT or SIGTERM, then stops it.
func (s *Shell) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var frontErr <-chan error
	if s.front != nil {
		frontErr = s.front.errors()
	}

	var runErr error
	select {
	case <-sigCtx.Done():
		s.logger.Info("shutdown requested")
	case err := <-frontErr:
		runErr = &ApplicationError{Operation: "serve", Service: s.front.Name(), Err: err}
	}

	if err := s.Stop(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Navigate navigates the shell to path.
func (s *Shell) Navigate(ctx context.Context, path string) router.Outcome {
	resolver := s.router.current()
	if resolver == nil {
		return router.Outcome{Requested: path, Err: ErrNotStarted}
	}
	return resolver.Navigate(ctx, path)
}

// Dispatch invokes a named action on the active unit.
func (s *Shell) Dispatch(name string) (string, error) {
	resolver := s.router.current()
	if resolver == nil {
		return "", ErrNotStarted
	}
	return resolver.Dispatch(name)
}

// Resolver returns the running resolver, or nil before Start.
func (s *Shell) Resolver() *router.Resolver {
	return s.router.current()
}

// Loader returns the running loader, or nil before Start.
func (s *Shell) Loader() *loader.Loader {
	return s.loader.current()
}

// FrontAddr returns the address of the HTTP front once it is listening.
func (s *Shell) FrontAddr() net.Addr {
	if s.front == nil {
		return nil
	}
	return s.front.addr()
}
