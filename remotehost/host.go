// Package remotehost serves one remote's entry manifest over HTTP.
package remotehost

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/httpserver"
)

// Options configures a Host.
type Options struct {
	// Registry of the remote being served
	Registry *federation.Registry

	// ManifestFile, when set, is served instead of the registry's manifest
	// and reloaded whenever it changes on disk
	ManifestFile string

	// AllowOrigin is sent as Access-Control-Allow-Origin
	AllowOrigin string

	Logger *zap.Logger

	// Registry for metrics; nil disables /metrics
	Metrics *prometheus.Registry
}

// Host serves a remote's manifest at /remoteEntry.json.
type Host struct {
	name    string
	opts    Options
	logger  *zap.Logger
	watcher *config.Watcher[federation.Manifest]
	served  *prometheus.CounterVec

	mu       sync.RWMutex
	manifest federation.Manifest
}

// New creates a host. A manifest file must describe the same remote as the
// registry.
func New(opts Options) (*Host, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("remote host: no registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Host{
		name:     opts.Registry.Name(),
		opts:     opts,
		logger:   logger.With(zap.String("remote", opts.Registry.Name())),
		manifest: opts.Registry.Manifest(),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mfshell",
			Subsystem: "remotehost",
			Name:      "entry_requests_total",
			Help:      "Total number of entry manifest requests by remote",
		}, []string{"remote"}),
	}
	if opts.Metrics != nil {
		if err := opts.Metrics.Register(h.served); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}

	if opts.ManifestFile != "" {
		w, err := config.NewWatcher(filepath.Clean(opts.ManifestFile), h.readManifest, config.WatcherOptions{Logger: h.logger})
		if err != nil {
			return nil, err
		}
		w.OnChange(func(_, next federation.Manifest) {
			h.setManifest(next)
			h.logger.Info("entry manifest reloaded", zap.Int("exposes", len(next.Exposes)))
		})
		h.watcher = w
		h.manifest = w.Current()
	}
	return h, nil
}

func (h *Host) readManifest(path string) (federation.Manifest, error) {
	m, err := federation.ReadManifestFile(path)
	if err != nil {
		return federation.Manifest{}, err
	}
	if m.Name != h.name {
		return federation.Manifest{}, fmt.Errorf("%w: %s describes %q, not %q",
			federation.ErrInvalidManifest, path, m.Name, h.name)
	}
	return m, nil
}

// Name returns the served remote's name.
func (h *Host) Name() string {
	return h.name
}

// Manifest returns the manifest currently served.
func (h *Host) Manifest() federation.Manifest {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.manifest
}

func (h *Host) setManifest(m federation.Manifest) {
	h.mu.Lock()
	h.manifest = m
	h.mu.Unlock()
}

// Start begins watching the manifest file, if any.
func (h *Host) Start() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Start()
}

// Close stops watching the manifest file.
func (h *Host) Close() error {
	if h.watcher == nil {
		return nil
	}
	return h.watcher.Stop()
}

// Handler returns the host's HTTP routes.
func (h *Host) Handler() http.Handler {
	r := httpserver.NewRouter(h.logger)
	r.Use(httpserver.CORS(h.opts.AllowOrigin))

	r.Get("/"+federation.ManifestFile, h.serveManifest)
	r.Get("/health", h.serveHealth)
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", httpserver.MetricsHandler(h.opts.Metrics))
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+federation.ManifestFile, http.StatusTemporaryRedirect)
	})
	return r
}

func (h *Host) serveManifest(w http.ResponseWriter, r *http.Request) {
	h.served.WithLabelValues(h.name).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := h.Manifest().Encode(w); err != nil {
		h.logger.Warn("failed to write entry manifest", zap.Error(err))
	}
}

func (h *Host) serveHealth(w http.ResponseWriter, r *http.Request) {
	m := h.Manifest()
	exposes := make([]string, 0, len(m.Exposes))
	for name := range m.Exposes {
		exposes = append(exposes, name)
	}
	sort.Strings(exposes)
	httpserver.WriteJSON(w, http.StatusOK, httpserver.Healthy(map[string]interface{}{
		"remote":  h.name,
		"exposes": exposes,
	}))
}
