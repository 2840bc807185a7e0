// Package logging builds the zap loggers used by the shell and remote hosts.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/najoast/mfshell/config"
)

// Level maps a configured level to a zap level. Trace has no zap
// equivalent and logs at debug.
func Level(level config.LogLevel) (zapcore.Level, error) {
	switch level {
	case config.LogLevelTrace, config.LogLevelDebug:
		return zapcore.DebugLevel, nil
	case config.LogLevelInfo, "":
		return zapcore.InfoLevel, nil
	case config.LogLevelWarn:
		return zapcore.WarnLevel, nil
	case config.LogLevelError:
		return zapcore.ErrorLevel, nil
	case config.LogLevelFatal:
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, level)
	}
}

// Config translates cfg into a zap configuration: the json format uses the
// production encoder, anything else the console encoder.
func Config(cfg config.LogConfig) (zap.Config, error) {
	level, err := Level(cfg.Level)
	if err != nil {
		return zap.Config{}, err
	}

	var zc zap.Config
	if strings.EqualFold(cfg.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		if cfg.Color {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}

	if len(cfg.Fields) > 0 {
		zc.InitialFields = make(map[string]interface{}, len(cfg.Fields))
		for k, v := range cfg.Fields {
			zc.InitialFields[k] = v
		}
	}
	return zc, nil
}

// New builds a logger from cfg.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	zc, err := Config(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
