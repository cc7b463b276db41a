package slogutil

import (
	"io"
	"log/slog"
	"os"

	"csb/internal/config"
)

// Options override the logging section of the configuration.
type Options struct {
	// Verbosity and Quiet come from -v and -q.
	Verbosity int
	Quiet     bool
	// File, when set, replaces the configured log file.
	File string
	// Stderr receives console output. Defaults to os.Stderr.
	Stderr io.Writer
}

type closers []io.Closer

func (c closers) Close() error {
	var firstErr error
	for _, cl := range c {
		if err := cl.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Setup builds the process logger. Console output uses the configured
// format and level, unless flags override the level. A log file, when
// configured, always records at debug level in the line format and is
// rotated by size. The returned closer releases the file.
func Setup(cfg config.LoggingConfig, opts Options) (*slog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := LevelFromString(cfg.Level)
	if l, ok := LevelFromVerbosity(opts.Verbosity, opts.Quiet); ok {
		level = l
	}

	logger := NewLogger(stderr, level)
	if cfg.Format == "json" {
		logger = NewJSONLogger(stderr, level)
	}

	path := cfg.File
	if opts.File != "" {
		path = opts.File
	}
	if path == "" {
		return logger, closers(nil), nil
	}

	rf, err := OpenRotatingFile(path, ParseSize(cfg.MaxSize), cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	file := NewHandler(rf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewTeeHandler(logger.Handler(), file)), closers{rf}, nil
}
