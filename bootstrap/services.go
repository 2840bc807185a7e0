package bootstrap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/httpserver"
	"github.com/najoast/mfshell/loader"
	"github.com/najoast/mfshell/remotes"
	"github.com/najoast/mfshell/router"
)

// RouteTable builds the resolver's route table from the shell configuration.
func RouteTable(cfg config.ShellConfig) (*router.Table, error) {
	routes := make([]router.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		entry, ok := cfg.Remotes[rc.Remote]
		if !ok {
			return nil, fmt.Errorf("%w: %s", config.ErrUnknownRemote, rc.Remote)
		}
		routes = append(routes, router.Route{
			Path: rc.Path,
			Ref: federation.ExposedRef{
				Remote:      federation.RemoteDescriptor{Name: rc.Remote, EntryLocation: entry},
				ExposedName: rc.Exposed,
			},
		})
	}
	return router.NewTable(routes, cfg.Default)
}

// loaderService owns the catalog of bundled implementations, the shared
// scope and the remote loader.
type loaderService struct {
	shell   *Shell
	fetcher loader.Fetcher
	metrics *loader.Metrics

	mu     sync.RWMutex
	loader *loader.Loader
}

func (s *loaderService) Name() string { return "loader" }

func (s *loaderService) Start(ctx context.Context) error {
	logger := s.shell.logger.Named("loader")
	cfg := s.shell.cfg

	catalog := federation.NewCatalog()
	bundled, err := remotes.Install(catalog, s.shell.logger.Named("remote"))
	if err != nil {
		return err
	}

	shared := loader.NewSharedScope(logger)
	names := make([]string, 0, len(ShellShared))
	for name := range ShellShared {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := shared.Provide(name, ShellShared[name], true); err != nil {
			return err
		}
	}

	fetcher := s.fetcher
	switch {
	case fetcher != nil:
	case cfg.Shell.Embedded:
		static := loader.NewStaticFetcher()
		for name, reg := range bundled {
			if entry, ok := cfg.Shell.Remotes[name]; ok {
				static.Serve(entry, reg.Manifest())
			}
		}
		fetcher = static
	default:
		fetcher = loader.NewHTTPFetcher(loader.HTTPFetcherOptions{
			Timeout:        cfg.Loader.Timeout,
			Retries:        uint64(cfg.Loader.Retries),
			InitialBackoff: cfg.Loader.InitialBackoff,
			Logger:         logger,
		})
	}

	l := loader.New(fetcher, catalog,
		loader.WithLogger(logger),
		loader.WithMetrics(s.metrics),
		loader.WithSharedScope(shared))

	s.mu.Lock()
	s.loader = l
	s.mu.Unlock()

	logger.Info("loader ready",
		zap.Strings("handles", catalog.Handles()),
		zap.Bool("embedded", cfg.Shell.Embedded))
	return nil
}

func (s *loaderService) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.loader = nil
	s.mu.Unlock()
	return nil
}

func (s *loaderService) Health(ctx context.Context) (HealthStatus, error) {
	l := s.current()
	if l == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	cached := 0
	for _, entry := range s.shell.cfg.Shell.Remotes {
		if l.Cached(entry) {
			cached++
		}
	}
	return HealthStatus{
		State: HealthHealthy,
		Data: map[string]interface{}{
			"cached_remotes": cached,
			"shared_libs":    len(l.Shared().Active()),
		},
	}, nil
}

func (s *loaderService) current() *loader.Loader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loader
}

// routerService owns the resolver and with it the active view.
type routerService struct {
	shell   *Shell
	metrics *router.Metrics

	mu       sync.RWMutex
	resolver *router.Resolver
}

func (s *routerService) Name() string { return "router" }

func (s *routerService) Start(ctx context.Context) error {
	l := s.shell.loader.current()
	if l == nil {
		return fmt.Errorf("loader is not running")
	}
	table, err := RouteTable(s.shell.cfg.Shell)
	if err != nil {
		return err
	}
	resolver := router.NewResolver(table, l,
		router.WithLogger(s.shell.logger.Named("router")),
		router.WithMetrics(s.metrics))

	s.mu.Lock()
	s.resolver = resolver
	s.mu.Unlock()
	return nil
}

func (s *routerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	resolver := s.resolver
	s.resolver = nil
	s.mu.Unlock()

	if resolver != nil {
		resolver.Close()
	}
	return nil
}

func (s *routerService) Health(ctx context.Context) (HealthStatus, error) {
	resolver := s.current()
	if resolver == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	data := map[string]interface{}{"routes": len(resolver.Table().Routes())}
	if route, unit, ok := resolver.Active(); ok {
		data["active_path"] = "/" + route.Path
		data["active_unit"] = unit.Name()
	}
	return HealthStatus{State: HealthHealthy, Data: data}, nil
}

func (s *routerService) current() *router.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver
}

// frontService serves the shell over HTTP. Start binds the listener and
// returns; serving continues in the background until Stop.
type frontService struct {
	shell *Shell

	mu     sync.Mutex
	server *httpserver.Server
	ln     net.Listener
	cancel context.CancelFunc
	done   chan error
	errs   chan error
}

func (s *frontService) Name() string { return "http-front" }

func (s *frontService) Start(ctx context.Context) error {
	cfg := s.shell.cfg
	ln, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr(), err)
	}

	logger := s.shell.logger.Named("http")
	server := httpserver.New("shell", cfg.HTTP, NewFrontHandler(s.shell, logger), logger)
	serveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	errs := make(chan error, 1)

	s.mu.Lock()
	s.server = server
	s.ln = ln
	s.cancel = cancel
	s.done = done
	s.errs = errs
	s.mu.Unlock()

	go func() {
		err := server.Serve(serveCtx, ln)
		if err != nil && serveCtx.Err() == nil {
			errs <- err
		}
		done <- err
	}()
	return nil
}

func (s *frontService) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *frontService) Health(ctx context.Context) (HealthStatus, error) {
	addr := s.addr()
	if addr == nil {
		return HealthStatus{State: HealthStopped}, nil
	}
	return HealthStatus{
		State: HealthHealthy,
		Data:  map[string]interface{}{"addr": addr.String()},
	}, nil
}

func (s *frontService) addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// errors reports a serving failure after a successful start.
func (s *frontService) errors() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}
