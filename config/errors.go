package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidTimeout     = errors.New("invalid loader timeout")
	ErrInvalidRetries     = errors.New("invalid loader retries")
	ErrInvalidRemoteURL   = errors.New("invalid remote entry url")
	ErrInvalidRoute       = errors.New("invalid route")
	ErrUnknownRemote      = errors.New("route names an unknown remote")
	ErrInvalidDefault     = errors.New("default redirect has no route")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
