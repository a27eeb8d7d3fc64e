// Package log builds the slog.Logger and the raw HID report tracer used
// by every command.
//
// Without a log file, records below error go to stdout and errors go to
// stderr. With a log file, the console gets everything on stderr and the
// file receives a copy.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Config holds the logging flags shared by all commands.
type Config struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" enum:"trace,debug,info,warn,error" env:"JOYBRIDGE_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"JOYBRIDGE_LOG_FILE"`
	RawFile string `help:"Write hex dumps of HID reports to this file" env:"JOYBRIDGE_LOG_RAW_FILE"`
}

// LevelTrace sits below Debug and enables per-report output.
const LevelTrace slog.Level = -8

var levels = map[string]slog.Level{
	"trace": LevelTrace,
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps a level name to its slog.Level. Unknown names are Info.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[s]; ok {
		return l
	}
	return slog.LevelInfo
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// below drops records at or above ceiling.
type below struct {
	slog.Handler
	ceiling slog.Level
}

func (b below) Enabled(ctx context.Context, level slog.Level) bool {
	return level < b.ceiling && b.Handler.Enabled(ctx, level)
}

func (b below) WithAttrs(attrs []slog.Attr) slog.Handler {
	return below{Handler: b.Handler.WithAttrs(attrs), ceiling: b.ceiling}
}

func (b below) WithGroup(name string) slog.Handler {
	return below{Handler: b.Handler.WithGroup(name), ceiling: b.ceiling}
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: levelNames})
}

// levelNames prints LevelTrace as TRACE instead of DEBUG-4.
func levelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok && l == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// consoleHandler splits output between stdout and stderr.
func consoleHandler(stdout, stderr io.Writer, level slog.Level) slog.Handler {
	return fanout{
		below{Handler: newHandler(stdout, level), ceiling: slog.LevelError},
		newHandler(stderr, max(level, slog.LevelError)),
	}
}

func create(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}

// Setup builds the logger and the raw HID report logger from cfg. Raw
// reports go to RawFile, or to stdout when the level is trace. The
// returned closers own any files opened.
func Setup(cfg Config) (*slog.Logger, RawLogger, []io.Closer, error) {
	level := ParseLevel(cfg.Level)
	var (
		handler slog.Handler
		closers []io.Closer
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if cfg.File == "" {
		handler = consoleHandler(os.Stdout, os.Stderr, level)
	} else {
		f, err := create(cfg.File)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handler = fanout{newHandler(os.Stderr, level), newHandler(f, level)}
	}

	var raw io.Writer
	switch {
	case cfg.RawFile != "":
		f, err := create(cfg.RawFile)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("open raw log: %w", err)
		}
		closers = append(closers, f)
		raw = f
	case level <= LevelTrace:
		raw = os.Stdout
	}
	return slog.New(handler), NewRaw(raw), closers, nil
}
