package bootstrap

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/najoast/mfshell/httpserver"
	"github.com/najoast/mfshell/loader"
	"github.com/najoast/mfshell/router"
)

// ViewResponse describes the active view.
type ViewResponse struct {
	Path    string   `json:"path"`
	Remote  string   `json:"remote"`
	Exposed string   `json:"exposed"`
	Unit    string   `json:"unit"`
	Render  string   `json:"render"`
	Actions []string `json:"actions,omitempty"`
}

// NavigationResponse is the body of a navigation request.
type NavigationResponse struct {
	ID         string        `json:"id"`
	Requested  string        `json:"requested"`
	Redirected bool          `json:"redirected,omitempty"`
	Reused     bool          `json:"reused,omitempty"`
	Stale      bool          `json:"stale,omitempty"`
	View       *ViewResponse `json:"view,omitempty"`
	Error      string        `json:"error,omitempty"`
	Kind       string        `json:"kind,omitempty"`
}

// ActionResponse is the body of an action request.
type ActionResponse struct {
	Action string        `json:"action"`
	Result string        `json:"result"`
	View   *ViewResponse `json:"view,omitempty"`
}

// RouteResponse lists one configured route.
type RouteResponse struct {
	Path    string `json:"path"`
	Remote  string `json:"remote"`
	Entry   string `json:"entry"`
	Exposed string `json:"exposed"`
}

// NewFrontHandler returns the HTTP API of shell:
//
//	GET  /nav/*            navigate and render
//	GET  /view             the active view
//	POST /action/{name}    invoke an action on the active unit
//	GET  /routes           the route table
//	GET  /shared           active shared libraries
//	GET  /health           service health
//	GET  /metrics          Prometheus metrics, when monitoring is enabled
//	GET  /debug/pprof/     profiles, in debug mode
func NewFrontHandler(shell *Shell, logger *zap.Logger) http.Handler {
	h := &frontHandler{shell: shell, logger: logger}
	monitor := shell.cfg.Monitor

	r := httpserver.NewRouter(logger)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/nav/", http.StatusFound)
	})
	r.Get("/nav", h.navigate)
	r.Get("/nav/*", h.navigate)
	r.Get("/view", h.view)
	r.Post("/action/{name}", h.action)
	r.Get("/routes", h.routes)
	r.Get("/shared", h.shared)
	r.Get(pathOr(monitor.HealthPath, "/health"), h.health)
	if monitor.Enabled {
		r.Handle(pathOr(monitor.MetricsPath, "/metrics"), httpserver.MetricsHandler(shell.registry))
	}
	if shell.cfg.IsDebugEnabled() {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

type frontHandler struct {
	shell  *Shell
	logger *zap.Logger
}

func (h *frontHandler) navigate(w http.ResponseWriter, r *http.Request) {
	out := h.shell.Navigate(r.Context(), "/"+chi.URLParam(r, "*"))

	resp := NavigationResponse{
		ID:         out.ID,
		Requested:  out.Requested,
		Redirected: out.Redirected,
		Reused:     out.Reused,
		Stale:      out.Stale,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
		resp.Kind = errorKind(out.Err)
		httpserver.WriteJSON(w, navigationStatus(out.Err), resp)
		return
	}
	if out.Stale {
		httpserver.WriteJSON(w, http.StatusConflict, resp)
		return
	}
	resp.View = h.activeView()
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *frontHandler) view(w http.ResponseWriter, r *http.Request) {
	view := h.activeView()
	if view == nil {
		httpserver.WriteJSON(w, http.StatusNotFound, httpserver.ErrorResponse{Error: router.ErrNoActiveUnit.Error()})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, view)
}

func (h *frontHandler) action(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	result, err := h.shell.Dispatch(name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, router.ErrUnknownAction):
			status = http.StatusNotFound
		case errors.Is(err, router.ErrNoActiveUnit), errors.Is(err, ErrNotStarted):
			status = http.StatusConflict
		}
		httpserver.WriteJSON(w, status, httpserver.ErrorResponse{Error: err.Error()})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, ActionResponse{Action: name, Result: result, View: h.activeView()})
}

func (h *frontHandler) routes(w http.ResponseWriter, r *http.Request) {
	resolver := h.shell.Resolver()
	if resolver == nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, httpserver.ErrorResponse{Error: ErrNotStarted.Error()})
		return
	}
	routes := resolver.Table().Routes()
	resp := make([]RouteResponse, 0, len(routes))
	for _, route := range routes {
		resp = append(resp, RouteResponse{
			Path:    "/" + route.Path,
			Remote:  route.Ref.Remote.Name,
			Entry:   route.Ref.Remote.EntryLocation,
			Exposed: route.Ref.ExposedName,
		})
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *frontHandler) shared(w http.ResponseWriter, r *http.Request) {
	l := h.shell.Loader()
	if l == nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, httpserver.ErrorResponse{Error: ErrNotStarted.Error()})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, l.Shared().Active())
}

func (h *frontHandler) health(w http.ResponseWriter, r *http.Request) {
	services := h.shell.lifecycle.Health(r.Context())
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	for _, name := range names {
		if services[name].State != HealthHealthy {
			status = http.StatusServiceUnavailable
			h.logger.Warn("unhealthy service", zap.String("service", name),
				zap.String("state", string(services[name].State)))
		}
	}
	resp := httpserver.Healthy(services)
	if status != http.StatusOK {
		resp.Status = "unhealthy"
	}
	httpserver.WriteJSON(w, status, resp)
}

func (h *frontHandler) activeView() *ViewResponse {
	resolver := h.shell.Resolver()
	if resolver == nil {
		return nil
	}
	route, unit, ok := resolver.Active()
	if !ok {
		return nil
	}
	return &ViewResponse{
		Path:    "/" + route.Path,
		Remote:  route.Ref.Remote.Name,
		Exposed: route.Ref.ExposedName,
		Unit:    unit.Name(),
		Render:  unit.Render(),
		Actions: resolver.Actions(),
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, router.ErrNoRoute):
		return "no_route"
	case errors.Is(err, router.ErrClosed), errors.Is(err, ErrNotStarted):
		return "unavailable"
	default:
		return loader.Kind(err)
	}
}

func navigationStatus(err error) int {
	switch {
	case errors.Is(err, router.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, loader.ErrNetworkFetch):
		return http.StatusBadGateway
	case errors.Is(err, loader.ErrDependencyConflict):
		return http.StatusConflict
	case errors.Is(err, router.ErrClosed), errors.Is(err, ErrNotStarted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
