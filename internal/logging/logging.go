// Package logging builds the zerolog loggers used by merge runs.
//
// There is no package-level logger. The CLI builds one base logger and
// derives a child per donor run with ForRun; components receive it
// through a context.Context so concurrent runs never share mutable log
// state.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config holds logger configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level string

	// Format is "console", "json" or "auto" (console on a terminal).
	Format string

	// NoColor disables color output in console mode.
	NoColor bool
}

// New creates a logger writing to w according to cfg.
func New(w io.Writer, cfg Config) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level := ParseLevel(cfg.Level)

	var writer io.Writer = w
	if useConsole(w, cfg.Format) {
		writer = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor || os.Getenv("NO_COLOR") != "",
		}
	}

	// Donor runs log concurrently.
	writer = zerolog.SyncWriter(writer)

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

func useConsole(w io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case "console", "pretty":
		return true
	case "json":
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ForRun derives the logger for one donor-level merge run.
func ForRun(base zerolog.Logger, donor, workflow string) zerolog.Logger {
	return base.With().
		Str("donor", donor).
		Str("workflow", workflow).
		Logger()
}

type contextKey int

const loggerKey contextKey = iota

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, &logger)
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && l != nil {
			return l
		}
	}
	nop := zerolog.Nop()
	return &nop
}
