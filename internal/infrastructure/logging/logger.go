package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/catalogdb/internal/infrastructure/config"
	"github.com/nerrad567/catalogdb/internal/infrastructure/database"
)

// Logger is a slog.Logger carrying catalogdb's default fields.
// It doubles as a database.Observer that writes a line per statement.
type Logger struct {
	*slog.Logger

	slow time.Duration
}

// Option adjusts a Logger built by New.
type Option func(*settings)

type settings struct {
	out      io.Writer
	instance string
}

// WithOutput sends records to w, overriding cfg.Output.
func WithOutput(w io.Writer) Option {
	return func(s *settings) {
		s.out = w
	}
}

// WithInstance adds an instance field to every record.
func WithInstance(id string) Option {
	return func(s *settings) {
		s.instance = id
	}
}

// New builds a Logger from cfg. Records carry service and version fields;
// they go to stderr unless cfg.Output is "stdout", since query results own
// stdout.
func New(cfg config.LoggingConfig, version string, opts ...Option) *Logger {
	s := settings{out: os.Stderr}
	if strings.EqualFold(cfg.Output, "stdout") {
		s.out = os.Stdout
	}
	for _, opt := range opts {
		opt(&s)
	}

	ho := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(s.out, ho)
	} else {
		handler = slog.NewJSONHandler(s.out, ho)
	}

	attrs := []slog.Attr{
		slog.String("service", "catalogdb"),
		slog.String("version", version),
	}
	if s.instance != "" {
		attrs = append(attrs, slog.String("instance", s.instance))
	}

	return &Logger{
		Logger: slog.New(handler.WithAttrs(attrs)),
		slow:   time.Duration(cfg.SlowQuery) * time.Millisecond,
	}
}

// Default is the text, info-level logger used before config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text"}, "dev")
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), slow: l.slow}
}

// ObserveQuery implements database.Observer. Failed statements log at warn,
// statements at or above the slow-query threshold at info, everything else
// at debug. Bound values are never logged.
func (l *Logger) ObserveQuery(ctx context.Context, ev database.QueryEvent) {
	level, msg := slog.LevelDebug, "query executed"
	switch {
	case ev.Err != nil:
		level, msg = slog.LevelWarn, "query failed"
	case l.slow > 0 && ev.Duration >= l.slow:
		level, msg = slog.LevelInfo, "slow query"
	}
	if !l.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("kind", string(ev.Kind)),
		slog.String("statement", ev.Statement),
		slog.Duration("duration", ev.Duration),
	}
	if ev.Name != "" {
		attrs = append(attrs, slog.String("query", ev.Name))
	}
	if ev.Kind == database.EventBatch {
		attrs = append(attrs, slog.Int("tuples", ev.Tuples))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("error", ev.Err))
	}
	l.LogAttrs(ctx, level, msg, attrs...)
}

// parseLevel maps debug, info, warn(ing) and error, in any case, to a
// slog level. Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
