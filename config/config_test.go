package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

// TestDefaultConfig tests that the defaults describe a working shell
func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}
	if len(config.Shell.Routes) != 2 {
		t.Fatalf("Expected 2 default routes, got %d", len(config.Shell.Routes))
	}
	if config.Shell.Default != "/mfe1" {
		t.Errorf("Expected default redirect '/mfe1', got '%s'", config.Shell.Default)
	}
	if got := config.Shell.RemoteNames(); strings.Join(got, ",") != "mfe1,mfe2" {
		t.Errorf("Expected remotes mfe1,mfe2, got %v", got)
	}
	if config.HTTP.Addr() != "127.0.0.1:4200" {
		t.Errorf("Expected shell address 127.0.0.1:4200, got %s", config.HTTP.Addr())
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid app name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: ErrInvalidAppName,
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.App.Environment = "moon" },
			wantErr: ErrInvalidEnvironment,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.HTTP.Port = -1 },
			wantErr: ErrInvalidPort,
		},
		{
			name:    "invalid timeout",
			mutate:  func(c *Config) { c.Loader.Timeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "relative remote url",
			mutate:  func(c *Config) { c.Shell.Remotes["mfe1"] = "/remoteEntry.json" },
			wantErr: ErrInvalidRemoteURL,
		},
		{
			name: "route to unknown remote",
			mutate: func(c *Config) {
				c.Shell.Routes = append(c.Shell.Routes, RouteConfig{Path: "/mfe3", Remote: "mfe3", Exposed: "./X"})
			},
			wantErr: ErrUnknownRemote,
		},
		{
			name: "duplicate route",
			mutate: func(c *Config) {
				c.Shell.Routes = append(c.Shell.Routes, RouteConfig{Path: "mfe1/", Remote: "mfe1", Exposed: "./X"})
			},
			wantErr: ErrInvalidRoute,
		},
		{
			name:    "route without exposed name",
			mutate:  func(c *Config) { c.Shell.Routes[0].Exposed = "" },
			wantErr: ErrInvalidRoute,
		},
		{
			name:    "default without route",
			mutate:  func(c *Config) { c.Shell.Default = "/home" },
			wantErr: ErrInvalidDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Config.Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoader tests YAML configuration loading
func TestLoader(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)

	yamlFile := writeFile(t, t.TempDir(), "shell.yaml", `
app:
  name: test-shell
  environment: development

log:
  level: debug
  format: json

shell:
  remotes:
    remoteX: "http://remote-x.test/remoteEntry.json"
  routes:
    - path: /unitA
      remote: remoteX
      exposed: Widget
  default: /unitA

loader:
  timeout: 2s
  retries: 1
`)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-shell" {
		t.Errorf("Expected app name 'test-shell', got '%s'", config.App.Name)
	}
	if config.Log.Level != LogLevelDebug {
		t.Errorf("Expected log level debug, got %v", config.Log.Level)
	}
	if len(config.Shell.Routes) != 1 || config.Shell.Routes[0].Exposed != "Widget" {
		t.Fatalf("Expected single Widget route, got %+v", config.Shell.Routes)
	}
	if config.Shell.Default != "/unitA" {
		t.Errorf("Expected default '/unitA', got '%s'", config.Shell.Default)
	}
	if config.Loader.Timeout != 2*time.Second {
		t.Errorf("Expected loader timeout 2s, got %v", config.Loader.Timeout)
	}

	// Unset fields come from defaults
	if config.HTTP.Port != 4200 {
		t.Errorf("Expected default http port 4200, got %d", config.HTTP.Port)
	}
	if config.Loader.InitialBackoff != 200*time.Millisecond {
		t.Errorf("Expected default backoff, got %v", config.Loader.InitialBackoff)
	}
}

// TestLoaderExplicitZeroValues tests that explicit zero and false values
// replace the defaults while omitted keys keep them
func TestLoaderExplicitZeroValues(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)
	dir := t.TempDir()

	config, err := loader.LoadFromFile(writeFile(t, dir, "zero.yaml", `
log:
  color: false
loader:
  retries: 0
monitor:
  enabled: false
`))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Loader.Retries != 0 {
		t.Errorf("Expected retries 0, got %d", config.Loader.Retries)
	}
	if config.Monitor.Enabled {
		t.Error("Expected monitoring to be disabled")
	}
	if config.Log.Color {
		t.Error("Expected color to be disabled")
	}

	config, err = loader.LoadFromReader(strings.NewReader(`{"loader": {"retries": 0}}`), FormatJSON)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}
	if config.Loader.Retries != 0 {
		t.Errorf("Expected JSON retries 0, got %d", config.Loader.Retries)
	}

	config, err = loader.LoadFromFile(writeFile(t, dir, "omitted.yaml", "app:\n  name: omitted\n"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Loader.Retries != 2 {
		t.Errorf("Expected default retries 2, got %d", config.Loader.Retries)
	}
	if !config.Monitor.Enabled || !config.Log.Color {
		t.Errorf("Expected default monitor and color settings, got %v %v", config.Monitor.Enabled, config.Log.Color)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)

	config, err := loader.LoadFromReader(strings.NewReader(`{
	"app": {"name": "json-shell", "environment": "production"},
	"http": {"port": 8080},
	"shell": {
		"routes": [{"path": "/mfe2", "remote": "mfe2", "exposed": "./Feature2Component"}]
	}
}`), FormatJSON)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}

	if !config.IsProduction() {
		t.Errorf("Expected env production, got %v", config.App.Environment)
	}
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.HTTP.Port)
	}
	if config.Shell.Default != "" {
		t.Errorf("Expected a replaced route table to drop the default redirect, got '%s'", config.Shell.Default)
	}
	if _, ok := config.Shell.Remotes["mfe2"]; !ok {
		t.Errorf("Expected default remotes to be kept, got %v", config.Shell.Remotes)
	}
}

// TestLoaderErrors tests parse and lookup failures
func TestLoaderErrors(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)
	dir := t.TempDir()

	_, err := loader.LoadFromFile(writeFile(t, dir, "bad.yaml", "app: [unterminated"))
	if !errors.Is(err, ErrConfigParseError) {
		t.Errorf("Expected parse error, got %v", err)
	}

	_, err = loader.LoadFromFile(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}

	_, err = loader.LoadFromFile(writeFile(t, dir, "shell.toml", ""))
	if err == nil {
		t.Error("Expected unsupported format error")
	}

	_, err = loader.LoadFromFile(writeFile(t, dir, "routes.yaml", `
shell:
  routes:
    - {path: /x, remote: nowhere, exposed: X}
`))
	if !errors.Is(err, ErrUnknownRemote) {
		t.Errorf("Expected unknown remote error, got %v", err)
	}
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MFSHELL_APP_NAME", "env-shell")
	t.Setenv("MFSHELL_HTTP_PORT", "7777")
	t.Setenv("MFSHELL_LOG_LEVEL", "error")
	t.Setenv("MFSHELL_LOADER_TIMEOUT", "750ms")
	t.Setenv("MFSHELL_SHELL_REMOTE_MFE2", "http://mfe2.internal/remoteEntry.json")

	loader := NewLoader()
	yamlFile := writeFile(t, t.TempDir(), "env.yaml", `
app:
  name: base-shell
log:
  level: info
`)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-shell" {
		t.Errorf("Expected app name 'env-shell', got '%s'", config.App.Name)
	}
	if config.HTTP.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", config.HTTP.Port)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected log level error, got %v", config.Log.Level)
	}
	if config.Loader.Timeout != 750*time.Millisecond {
		t.Errorf("Expected timeout 750ms, got %v", config.Loader.Timeout)
	}
	if got := config.Shell.Remotes["mfe2"]; got != "http://mfe2.internal/remoteEntry.json" {
		t.Errorf("Expected overridden mfe2 entry, got %s", got)
	}
	if got := DefaultConfig().Shell.Remotes["mfe2"]; got != "http://localhost:4202/remoteEntry.json" {
		t.Errorf("Override leaked into defaults: %s", got)
	}
}

// TestEnvironmentOverrideErrors tests malformed environment values
func TestEnvironmentOverrideErrors(t *testing.T) {
	env := map[string]string{"SHELL_HTTP_PORT": "eighty"}
	loader := NewLoader().
		SetEnvPrefix("SHELL").
		SetSearchPaths([]string{t.TempDir()}).
		SetEnvLookup(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		})

	_, err := loader.AutoLoad()
	if !errors.Is(err, ErrEnvironmentVarError) {
		t.Errorf("Expected environment error, got %v", err)
	}
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader().SetSearchPaths([]string{dir}).SetEnvLookup(noEnv)

	// Nothing on disk: defaults
	config, err := loader.AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load defaults: %v", err)
	}
	if config.App.Name != "mfshell" {
		t.Errorf("Expected default app name, got '%s'", config.App.Name)
	}

	writeFile(t, dir, "mfshell.yaml", `
app:
  name: auto-load-shell
`)
	config, err = loader.Load("")
	if err != nil {
		t.Fatalf("Failed to auto-load config: %v", err)
	}
	if config.App.Name != "auto-load-shell" {
		t.Errorf("Expected app name 'auto-load-shell', got '%s'", config.App.Name)
	}
}

// TestWatcher tests file watching
func TestWatcher(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)
	configFile := writeFile(t, t.TempDir(), "watch.yaml", `
app:
  name: watch-shell
http:
  port: 8080
`)

	watcher, err := NewWatcher(configFile, loader.LoadFromFile, WatcherOptions{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if got := watcher.Current().HTTP.Port; got != 8080 {
		t.Errorf("Expected initial port 8080, got %d", got)
	}

	changeDetected := make(chan int, 1)
	watcher.OnChange(func(oldConfig, newConfig *Config) {
		select {
		case changeDetected <- newConfig.HTTP.Port:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Dir(configFile), "watch.yaml", `
app:
  name: watch-shell
http:
  port: 9090
`)

	select {
	case port := <-changeDetected:
		if port != 9090 {
			t.Errorf("Expected reloaded port 9090, got %d", port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Configuration change was not detected within timeout")
	}

	if got := watcher.Current().HTTP.Port; got != 9090 {
		t.Errorf("Expected current port 9090, got %d", got)
	}
}

// TestWatcherKeepsValueOnBadReload tests that a broken file is not applied
func TestWatcherKeepsValueOnBadReload(t *testing.T) {
	loader := NewLoader().SetEnvLookup(noEnv)
	configFile := writeFile(t, t.TempDir(), "watch.yaml", "app:\n  name: stable\n")

	watcher, err := NewWatcher(configFile, loader.LoadFromFile, WatcherOptions{})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	writeFile(t, filepath.Dir(configFile), "watch.yaml", "app: [")
	if err := watcher.Reload(); err == nil {
		t.Fatal("Expected reload of a broken file to fail")
	}
	if got := watcher.Current().App.Name; got != "stable" {
		t.Errorf("Expected previous value to be kept, got '%s'", got)
	}
}

// TestExampleConfig tests that the shipped example configuration loads
func TestExampleConfig(t *testing.T) {
	config, err := NewLoader().SetEnvLookup(noEnv).LoadFromFile("../configs/mfshell.example.yaml")
	if err != nil {
		t.Fatalf("Failed to load example config: %v", err)
	}

	if config.Loader.Timeout != 5*time.Second {
		t.Errorf("Expected loader timeout 5s, got %v", config.Loader.Timeout)
	}
	if config.Shell.Embedded {
		t.Error("Expected example to fetch remotes over HTTP")
	}
	if len(config.Shell.Routes) != 2 || config.Shell.Default != "/mfe1" {
		t.Errorf("Unexpected routes %v default %q", config.Shell.Routes, config.Shell.Default)
	}
	if config.Remote.HTTP.ReadTimeout == 0 {
		t.Error("Expected remote read timeout to be filled from defaults")
	}
}
