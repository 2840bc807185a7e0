// Package config provides configuration management for the mfshell shell
// and its remote hosts
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// Config represents the complete mfshell configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Remotes, routes and default redirect of the shell
	Shell ShellConfig `yaml:"shell" json:"shell"`

	// Remote entry fetching
	Loader LoaderConfig `yaml:"loader" json:"loader"`

	// Shell HTTP front
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Monitoring configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Remote host configuration, used by cmd/remote
	Remote RemoteHostConfig `yaml:"remote" json:"remote"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`

	// Application description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable colored output for the text format
	Color bool `yaml:"color" json:"color"`

	// Fields to include in log output
	Fields map[string]interface{} `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ShellConfig is the static route configuration of the shell. It is loaded
// once at startup.
type ShellConfig struct {
	// Remote name to entry URL
	Remotes map[string]string `yaml:"remotes" json:"remotes"`

	// Ordered route table; the first matching path wins
	Routes []RouteConfig `yaml:"routes" json:"routes"`

	// Redirect target for unmatched paths
	Default string `yaml:"default" json:"default"`

	// Serve the bundled remotes in-process instead of fetching over HTTP
	Embedded bool `yaml:"embedded" json:"embedded"`
}

// RouteConfig maps a path to an exposed unit of a remote
type RouteConfig struct {
	Path    string `yaml:"path" json:"path"`
	Remote  string `yaml:"remote" json:"remote"`
	Exposed string `yaml:"exposed" json:"exposed"`
}

// LoaderConfig contains remote entry fetch settings
type LoaderConfig struct {
	// Timeout of a single fetch attempt
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Retries after the first attempt for transient failures
	Retries int `yaml:"retries" json:"retries"`

	// Initial retry backoff
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
}

// HTTPConfig contains settings of an HTTP listener
type HTTPConfig struct {
	// Listening address
	Address string `yaml:"address" json:"address"`

	// Listening port
	Port int `yaml:"port" json:"port"`

	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// Write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Addr returns the host:port listen address
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// MonitorConfig contains monitoring configuration
type MonitorConfig struct {
	// Enable Prometheus metrics
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Metrics endpoint path
	MetricsPath string `yaml:"metrics_path" json:"metrics_path"`

	// Health endpoint path
	HealthPath string `yaml:"health_path" json:"health_path"`
}

// RemoteHostConfig configures a process serving one remote's entry
type RemoteHostConfig struct {
	// Bundled remote to serve (mfe1, mfe2)
	Name string `yaml:"name" json:"name"`

	// Listener
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Optional manifest file served instead of the compiled one; reloaded on change
	ManifestFile string `yaml:"manifest_file,omitempty" json:"manifest_file,omitempty"`

	// Value of Access-Control-Allow-Origin
	AllowOrigin string `yaml:"allow_origin" json:"allow_origin"`
}

// DefaultConfig returns a default configuration: the two bundled remotes on
// their conventional ports, routed at /mfe1 and /mfe2.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "mfshell",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Debug:       true,
			Description: "micro-frontend shell",
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "text",
			Output: "stderr",
			Color:  true,
		},
		Shell: ShellConfig{
			Remotes: map[string]string{
				"mfe1": "http://localhost:4201/remoteEntry.json",
				"mfe2": "http://localhost:4202/remoteEntry.json",
			},
			Routes: []RouteConfig{
				{Path: "/mfe1", Remote: "mfe1", Exposed: "./Feature1Component"},
				{Path: "/mfe2", Remote: "mfe2", Exposed: "./Feature2Component"},
			},
			Default: "/mfe1",
		},
		Loader: LoaderConfig{
			Timeout:        5 * time.Second,
			Retries:        2,
			InitialBackoff: 200 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Address:      "127.0.0.1",
			Port:         4200,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
		Remote: RemoteHostConfig{
			Name: "mfe1",
			HTTP: HTTPConfig{
				Address:      "127.0.0.1",
				Port:         4201,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			},
			AllowOrigin: "*",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate app config
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	// Validate log config
	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}

	// Validate listeners
	if !validPort(c.HTTP.Port) {
		return fmt.Errorf("%w: http %d", ErrInvalidPort, c.HTTP.Port)
	}
	if !validPort(c.Remote.HTTP.Port) {
		return fmt.Errorf("%w: remote %d", ErrInvalidPort, c.Remote.HTTP.Port)
	}

	// Validate loader config
	if c.Loader.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Loader.Retries < 0 {
		return ErrInvalidRetries
	}

	return c.Shell.Validate()
}

// Validate checks that every route names a known remote and the default
// redirect has a route.
func (s *ShellConfig) Validate() error {
	for name, entry := range s.Remotes {
		u, err := url.Parse(entry)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s: %q", ErrInvalidRemoteURL, name, entry)
		}
	}

	seen := make(map[string]bool, len(s.Routes))
	for i, r := range s.Routes {
		path := NormalizePath(r.Path)
		if path == "" || r.Exposed == "" {
			return fmt.Errorf("%w: routes[%d]", ErrInvalidRoute, i)
		}
		if seen[path] {
			return fmt.Errorf("%w: routes[%d] duplicates /%s", ErrInvalidRoute, i, path)
		}
		if _, ok := s.Remotes[r.Remote]; !ok {
			return fmt.Errorf("%w: routes[%d] names %q", ErrUnknownRemote, i, r.Remote)
		}
		seen[path] = true
	}

	if d := NormalizePath(s.Default); d != "" && !seen[d] {
		return fmt.Errorf("%w: /%s", ErrInvalidDefault, d)
	}
	return nil
}

// RemoteNames returns the names of routed remotes in route order
func (s *ShellConfig) RemoteNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range s.Routes {
		if !seen[r.Remote] {
			seen[r.Remote] = true
			names = append(names, r.Remote)
		}
	}
	return names
}

// NormalizePath strips surrounding slashes and whitespace from a route path
func NormalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// IsDebugEnabled returns true if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == EnvDevelopment
}
