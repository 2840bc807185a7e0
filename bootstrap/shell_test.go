package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/najoast/mfshell/config"
	"github.com/najoast/mfshell/loader"
	"github.com/najoast/mfshell/remotehost"
	"github.com/najoast/mfshell/remotes"
	"github.com/najoast/mfshell/remotes/mfe1"
	"github.com/najoast/mfshell/remotes/mfe2"
	"github.com/najoast/mfshell/router"
)

func embeddedConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Shell.Embedded = true
	return cfg
}

func startShell(t *testing.T, cfg *config.Config, opts ...Option) *Shell {
	t.Helper()
	shell, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, shell.Start(context.Background()))
	t.Cleanup(func() { _ = shell.Stop(context.Background()) })
	return shell
}

// remoteServer serves a bundled remote's entry and counts manifest requests.
func remoteServer(t *testing.T, name string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	reg, err := remotes.Lookup(name, nil)
	require.NoError(t, err)
	host, err := remotehost.New(remotehost.Options{Registry: reg})
	require.NoError(t, err)

	var served atomic.Int32
	handler := host.Handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &served
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := embeddedConfig()
	cfg.Shell.Default = "/nowhere"

	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidDefault)
}

func TestShellBeforeStart(t *testing.T) {
	shell, err := New(embeddedConfig())
	require.NoError(t, err)

	out := shell.Navigate(context.Background(), "/mfe1")
	assert.ErrorIs(t, out.Err, ErrNotStarted)
	_, err = shell.Dispatch("click")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, shell.Resolver())
	assert.NoError(t, shell.Stop(context.Background()))
}

func TestEmbeddedShellCounterScenario(t *testing.T) {
	shell := startShell(t, embeddedConfig())
	ctx := context.Background()

	out := shell.Navigate(ctx, "/mfe2")
	require.True(t, out.OK(), "navigation failed: %v", out.Err)
	assert.Equal(t, "Feature2", out.Unit.Name())
	assert.Equal(t, []string{"decrement", "increment"}, shell.Resolver().Actions())

	var result string
	var err error
	for _, action := range []string{"increment", "increment", "increment", "decrement"} {
		result, err = shell.Dispatch(action)
		require.NoError(t, err)
	}
	assert.Equal(t, "counter: 2", result)
	assert.Equal(t, "Feature2\ncounter: 2", out.Unit.Render())

	_, err = shell.Dispatch("reset")
	assert.ErrorIs(t, err, router.ErrUnknownAction)
}

func TestEmbeddedShellRedirectsUnknownPath(t *testing.T) {
	shell := startShell(t, embeddedConfig())

	out := shell.Navigate(context.Background(), "/unknown")
	require.True(t, out.OK(), "navigation failed: %v", out.Err)
	assert.True(t, out.Redirected)
	assert.Equal(t, "mfe1", out.Route.Path)
	assert.Equal(t, "Feature1", out.Unit.Name())

	greeting, err := shell.Dispatch("click")
	require.NoError(t, err)
	assert.Equal(t, mfe1.Greeting, greeting)
}

func TestEmbeddedShellProvidesSharedLibraries(t *testing.T) {
	shell := startShell(t, embeddedConfig())

	out := shell.Navigate(context.Background(), "/mfe1")
	require.True(t, out.OK(), "navigation failed: %v", out.Err)

	active := shell.Loader().Shared().Active()
	require.Len(t, active, len(ShellShared))
	for _, lib := range active {
		assert.Equal(t, "shell", lib.Owner)
		assert.True(t, loader.Satisfies(lib.Version, mfe1.Shared[lib.Name]))
	}
}

func TestStopTearsDownActiveUnit(t *testing.T) {
	shell, err := New(embeddedConfig())
	require.NoError(t, err)
	require.NoError(t, shell.Start(context.Background()))

	out := shell.Navigate(context.Background(), "/mfe1")
	require.True(t, out.OK(), "navigation failed: %v", out.Err)
	feature := out.Unit.(*mfe1.Feature1)

	require.NoError(t, shell.Stop(context.Background()))
	assert.True(t, feature.Token().IsCancelled())
	assert.False(t, shell.Lifecycle().IsStarted())
}

func TestShellFetchesRemotesOverHTTPOnce(t *testing.T) {
	srv1, served1 := remoteServer(t, mfe1.RemoteName)
	srv2, served2 := remoteServer(t, mfe2.RemoteName)

	cfg := config.DefaultConfig()
	cfg.Shell.Remotes = map[string]string{
		mfe1.RemoteName: srv1.URL + "/remoteEntry.json",
		mfe2.RemoteName: srv2.URL + "/remoteEntry.json",
	}
	shell := startShell(t, cfg)
	ctx := context.Background()

	for _, path := range []string{"/mfe1", "/mfe1", "/mfe2", "/mfe1", "/mfe2"} {
		out := shell.Navigate(ctx, path)
		require.True(t, out.OK(), "navigation to %s failed: %v", path, out.Err)
	}

	assert.Equal(t, int32(1), served1.Load())
	assert.Equal(t, int32(1), served2.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(shell.loader.metrics.FetchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(shell.loader.metrics.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(shell.router.metrics.NavigationsTotal.WithLabelValues("reused")))
}

func TestUnreachableRemoteKeepsPreviousView(t *testing.T) {
	srv1, _ := remoteServer(t, mfe1.RemoteName)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL + "/remoteEntry.json"
	dead.Close()

	cfg := config.DefaultConfig()
	cfg.Shell.Remotes = map[string]string{
		mfe1.RemoteName: srv1.URL + "/remoteEntry.json",
		mfe2.RemoteName: deadURL,
	}
	cfg.Loader.Retries = 0
	cfg.Loader.Timeout = time.Second

	core, logs := observer.New(zap.WarnLevel)
	shell := startShell(t, cfg, WithLogger(zap.New(core)))
	ctx := context.Background()

	first := shell.Navigate(ctx, "/mfe1")
	require.True(t, first.OK(), "navigation failed: %v", first.Err)

	out := shell.Navigate(ctx, "/mfe2")
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, loader.ErrNetworkFetch)

	route, unit, ok := shell.Resolver().Active()
	require.True(t, ok)
	assert.Equal(t, "mfe1", route.Path)
	assert.Same(t, first.Unit, unit)
	assert.False(t, first.Unit.(*mfe1.Feature1).Token().IsCancelled())
	assert.Equal(t, 1, logs.FilterMessage("navigation failed").Len())
}

func TestFrontHandler(t *testing.T) {
	shell := startShell(t, embeddedConfig())
	srv := httptest.NewServer(NewFrontHandler(shell, zap.NewNop()))
	t.Cleanup(srv.Close)

	var nav NavigationResponse
	status := getJSON(t, srv.URL+"/nav/mfe2", &nav)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, nav.View)
	assert.Equal(t, "Feature2", nav.View.Unit)
	assert.Equal(t, "/mfe2", nav.View.Path)
	assert.Equal(t, []string{"decrement", "increment"}, nav.View.Actions)

	resp, err := http.Post(srv.URL+"/action/increment", "application/json", nil)
	require.NoError(t, err)
	var action ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&action))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "counter: 1", action.Result)
	assert.Equal(t, "Feature2\ncounter: 1", action.View.Render)

	resp, err = http.Post(srv.URL+"/action/missing", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	nav = NavigationResponse{}
	status = getJSON(t, srv.URL+"/nav/unknown", &nav)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, nav.Redirected)
	assert.Equal(t, "Feature1", nav.View.Unit)

	var routes []RouteResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/routes", &routes))
	require.Len(t, routes, 2)
	assert.Equal(t, "/mfe1", routes[0].Path)
	assert.Equal(t, "./Feature2Component", routes[1].Exposed)

	var health struct {
		Status string                  `json:"status"`
		Data   map[string]HealthStatus `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, HealthHealthy, health.Data["router"].State)
	assert.Equal(t, "Feature1", health.Data["router"].Data["active_unit"])

	var view ViewResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/view", &view))
	assert.Equal(t, "mfe1", view.Remote)
	assert.Equal(t, []string{"click"}, view.Actions)

	var shared []loader.ActiveLib
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/shared", &shared))
	assert.Len(t, shared, len(ShellShared))

	for _, path := range []string{"/metrics", "/debug/pprof/"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestFrontServiceServesUntilStop(t *testing.T) {
	cfg := embeddedConfig()
	cfg.HTTP.Port = freePort(t)

	shell := startShell(t, cfg, WithHTTPFront())
	addr := shell.FrontAddr()
	require.NotNil(t, addr)

	var nav NavigationResponse
	status := getJSON(t, fmt.Sprintf("http://%s/nav/mfe1", addr), &nav)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Feature1", nav.View.Unit)

	require.NoError(t, shell.Stop(context.Background()))
	assert.Nil(t, shell.FrontAddr())

	_, err := net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
