package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// FormatOf determines the configuration format from a file extension
func FormatOf(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", filepath.Ext(filename))
	}
}

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Environment lookup, os.LookupEnv unless overridden
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	home, _ := os.UserHomeDir()
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
			"/etc/mfshell",
			filepath.Join(home, ".mfshell"),
		},
		envPrefix: "MFSHELL",
		lookupEnv: os.LookupEnv,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetEnvLookup replaces the environment lookup
func (l *Loader) SetEnvLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load loads configuration from the specified file, or discovers one in
// the search paths when filename is empty. Defaults are used when nothing
// is found.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename != "" {
		config, err := l.LoadFromFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", filename, err)
		}
		return config, nil
	}
	return l.AutoLoad()
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.finish(data, format)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	return l.finish(data, format)
}

// AutoLoad automatically discovers and loads configuration
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, _, err := l.findConfigFile()
	if err == nil {
		return l.LoadFromFile(configFile)
	}
	if !errors.Is(err, ErrConfigFileNotFound) {
		return nil, err
	}

	// No config file found: defaults plus environment
	config := DefaultConfig()
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// finish parses data, fills missing fields from defaults, applies the
// environment and validates.
func (l *Loader) finish(data []byte, format ConfigFormat) (*Config, error) {
	userConfig, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	set, err := parseExplicit(data, format)
	if err != nil {
		return nil, err
	}

	config := l.mergeConfig(DefaultConfig(), userConfig, set)

	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// explicitSettings holds the settings whose zero value is meaningful, so
// an explicit zero or false in a file is told apart from an omitted key.
type explicitSettings struct {
	Log struct {
		Color *bool `yaml:"color" json:"color"`
	} `yaml:"log" json:"log"`
	Loader struct {
		Retries *int `yaml:"retries" json:"retries"`
	} `yaml:"loader" json:"loader"`
	Monitor struct {
		Enabled *bool `yaml:"enabled" json:"enabled"`
	} `yaml:"monitor" json:"monitor"`
}

func parseExplicit(data []byte, format ConfigFormat) (*explicitSettings, error) {
	set := &explicitSettings{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, set)
	case FormatJSON:
		err = json.Unmarshal(data, set)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, format, err)
	}
	return set, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"mfshell.yaml", "mfshell.yml",
		"config.yaml", "config.yml",
		"mfshell.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err != nil {
				continue
			}
			format, err := FormatOf(filename)
			if err != nil {
				continue
			}
			return fullPath, format, nil
		}
	}

	return "", "", ErrConfigFileNotFound
}

// parseConfig parses configuration data based on format
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := &Config{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

// loadFromEnv loads configuration overrides from environment variables.
// Remote entry URLs are overridden per remote with PREFIX_SHELL_REMOTE_<NAME>.
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) (string, bool) {
		val, ok := l.lookupEnv(l.envPrefix + "_" + key)
		return val, ok && val != ""
	}

	// App configuration
	if val, ok := env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	if val, ok := env("APP_DEBUG"); ok {
		config.App.Debug = strings.ToLower(val) == "true"
	}

	// Log configuration
	if val, ok := env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(val)
	}
	if val, ok := env("LOG_FORMAT"); ok {
		config.Log.Format = val
	}
	if val, ok := env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}

	// Shell configuration
	if val, ok := env("SHELL_DEFAULT"); ok {
		config.Shell.Default = val
	}
	if val, ok := env("SHELL_EMBEDDED"); ok {
		config.Shell.Embedded = strings.ToLower(val) == "true"
	}
	if len(config.Shell.Remotes) > 0 {
		remotes := make(map[string]string, len(config.Shell.Remotes))
		for name, entry := range config.Shell.Remotes {
			if val, ok := env("SHELL_REMOTE_" + strings.ToUpper(name)); ok {
				entry = val
			}
			remotes[name] = entry
		}
		config.Shell.Remotes = remotes
	}

	// Loader configuration
	if val, ok := env("LOADER_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_LOADER_TIMEOUT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Loader.Timeout = d
	}
	if val, ok := env("LOADER_RETRIES"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_LOADER_RETRIES: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Loader.Retries = n
	}

	// Listener configuration
	if val, ok := env("HTTP_ADDRESS"); ok {
		config.HTTP.Address = val
	}
	if val, ok := env("HTTP_PORT"); ok {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_HTTP_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.HTTP.Port = port
	}
	if val, ok := env("REMOTE_NAME"); ok {
		config.Remote.Name = val
	}
	if val, ok := env("REMOTE_PORT"); ok {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_REMOTE_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Remote.HTTP.Port = port
	}
	if val, ok := env("REMOTE_MANIFEST_FILE"); ok {
		config.Remote.ManifestFile = val
	}

	// Monitor configuration
	if val, ok := env("MONITOR_ENABLED"); ok {
		config.Monitor.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// Helper function to parse port number
func parsePort(val string) (int, error) {
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if !validPort(port) {
		return 0, fmt.Errorf("invalid port number: %d", port)
	}
	return port, nil
}

// mergeConfig merges user config with default config. Settings listed in
// set replace the defaults only when present in the file.
func (l *Loader) mergeConfig(defaultConfig, userConfig *Config, set *explicitSettings) *Config {
	// Start with default config
	merged := *defaultConfig

	// App config
	if userConfig.App.Name != "" {
		merged.App.Name = userConfig.App.Name
	}
	if userConfig.App.Version != "" {
		merged.App.Version = userConfig.App.Version
	}
	if userConfig.App.Environment != "" {
		merged.App.Environment = userConfig.App.Environment
	}
	if userConfig.App.Description != "" {
		merged.App.Description = userConfig.App.Description
	}
	merged.App.Debug = userConfig.App.Debug

	// Log config
	if userConfig.Log.Level != "" {
		merged.Log.Level = userConfig.Log.Level
	}
	if userConfig.Log.Format != "" {
		merged.Log.Format = userConfig.Log.Format
	}
	if userConfig.Log.Output != "" {
		merged.Log.Output = userConfig.Log.Output
	}
	if set.Log.Color != nil {
		merged.Log.Color = *set.Log.Color
	}
	if userConfig.Log.Fields != nil {
		merged.Log.Fields = userConfig.Log.Fields
	}

	// Shell config: a configured route table replaces the default one
	if userConfig.Shell.Remotes != nil {
		merged.Shell.Remotes = userConfig.Shell.Remotes
	}
	if userConfig.Shell.Routes != nil {
		merged.Shell.Routes = userConfig.Shell.Routes
		merged.Shell.Default = ""
	}
	if userConfig.Shell.Default != "" {
		merged.Shell.Default = userConfig.Shell.Default
	}
	merged.Shell.Embedded = userConfig.Shell.Embedded

	// Loader config
	if userConfig.Loader.Timeout != 0 {
		merged.Loader.Timeout = userConfig.Loader.Timeout
	}
	if set.Loader.Retries != nil {
		merged.Loader.Retries = *set.Loader.Retries
	}
	if userConfig.Loader.InitialBackoff != 0 {
		merged.Loader.InitialBackoff = userConfig.Loader.InitialBackoff
	}

	// Listener config
	merged.HTTP = mergeHTTP(merged.HTTP, userConfig.HTTP)
	merged.Remote.HTTP = mergeHTTP(merged.Remote.HTTP, userConfig.Remote.HTTP)
	if userConfig.Remote.Name != "" {
		merged.Remote.Name = userConfig.Remote.Name
	}
	if userConfig.Remote.ManifestFile != "" {
		merged.Remote.ManifestFile = userConfig.Remote.ManifestFile
	}
	if userConfig.Remote.AllowOrigin != "" {
		merged.Remote.AllowOrigin = userConfig.Remote.AllowOrigin
	}

	// Monitor config
	if userConfig.Monitor.MetricsPath != "" {
		merged.Monitor.MetricsPath = userConfig.Monitor.MetricsPath
	}
	if userConfig.Monitor.HealthPath != "" {
		merged.Monitor.HealthPath = userConfig.Monitor.HealthPath
	}
	if set.Monitor.Enabled != nil {
		merged.Monitor.Enabled = *set.Monitor.Enabled
	}

	return &merged
}

func mergeHTTP(base, user HTTPConfig) HTTPConfig {
	if user.Address != "" {
		base.Address = user.Address
	}
	if user.Port != 0 {
		base.Port = user.Port
	}
	if user.ReadTimeout != 0 {
		base.ReadTimeout = user.ReadTimeout
	}
	if user.WriteTimeout != 0 {
		base.WriteTimeout = user.WriteTimeout
	}
	return base
}
