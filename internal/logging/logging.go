// Package logging builds the zap loggers used by the filter commands.
//
// Filter payloads travel over stdout, so every logger writes to stderr unless
// another writer is supplied.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Name is prefixed to every entry, e.g. "sempress-clean".
	Name string
	// Verbose enables debug level entries.
	Verbose bool
	// Output overrides the destination. Defaults to os.Stderr.
	Output io.Writer
}

// New returns a console-encoded logger without timestamps, matching the
// terse output git shows for filter processes.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.ConsoleSeparator = " "

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(out)),
		level,
	)

	logger := zap.New(core)
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}

	return logger
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}
