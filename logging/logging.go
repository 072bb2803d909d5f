// Package logging builds the process-wide slog logger: human-readable text on
// stderr, optionally fanned out to a JSON log file for later inspection.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m4xw311/superagent/errors"
	slogmulti "github.com/samber/slog-multi"
)

// Level is shared by every handler so it can be raised at runtime.
var Level = new(slog.LevelVar)

type Options struct {
	Level  string
	File   string
	Stderr io.Writer
}

// New returns a logger and a close function for the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	Level.Set(lvl)

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: Level}),
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", opts.File)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeFn = f.Close
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeFn, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.New("unknown log level %q", s)
}
