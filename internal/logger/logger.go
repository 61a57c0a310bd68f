// Package logger provides process-wide structured logging on top of log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level   = new(slog.LevelVar)
	mu      sync.RWMutex
	slogger = slog.New(newLineHandler(os.Stderr, level, isTerminal(os.Stderr)))
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Init configures level, format and destination. Output is "stdout",
// "stderr" or a file path opened for appending.
func Init(cfg Config) error {
	var (
		w     io.Writer = os.Stderr
		color           = isTerminal(os.Stderr)
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
	case "stdout":
		w, color = os.Stdout, isTerminal(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w, color = f, false
	}
	return configure(w, color, cfg.Level, cfg.Format)
}

func configure(w io.Writer, color bool, lvl, format string) error {
	if lvl != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(lvl)); err != nil {
			return fmt.Errorf("invalid log level %q", lvl)
		}
		level.Set(l)
	}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = newLineHandler(w, level, color)
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	mu.Lock()
	slogger = slog.New(h)
	mu.Unlock()
	return nil
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }
func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }

// DebugCtx logs at debug level, prepending the fields carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelDebug, msg, args)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelInfo, msg, args)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelWarn, msg, args)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelError, msg, args)
}

func logCtx(ctx context.Context, l slog.Level, msg string, args []any) {
	lg := get()
	if !lg.Enabled(ctx, l) {
		return
	}
	lg.Log(ctx, l, msg, contextFields(ctx, args)...)
}

// Duration returns the time elapsed since start in milliseconds.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
