package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

type Options struct {
	Level  slog.Level
	Format string
	Output io.Writer
	// Sentry forwards warnings as logs and errors as events.
	Sentry bool
}

// New builds the process logger. Text output is colourised with tint when
// writing to a terminal.
func New(ctx context.Context, opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var base slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		base = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	default:
		base = tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(out),
		})
	}

	if !opts.Sentry {
		return slog.New(base)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(ctx)

	return slog.New(MultiHandler(base, sentryHandler))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
