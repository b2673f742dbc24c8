package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options tune the logger beyond the environment preset.
type Options struct {
	Level string // debug, info, warn, error; empty keeps the preset level
	File  string // write to this file instead of stderr
}

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev use console output.
func NewLogger(env string, opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
