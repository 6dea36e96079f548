package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"mercator-hq/apiflow/pkg/config"
)

// LogFormat is the output encoding.
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
	// FormatConsole is text without the time key, for interactive terminals.
	FormatConsole LogFormat = "console"
)

// Config selects level, format and redaction. Writer defaults to os.Stderr.
type Config struct {
	Level     string
	Format    string
	AddSource bool
	RedactPII bool
	Writer    io.Writer
}

// FromConfig converts the telemetry logging section.
func FromConfig(c config.LoggingConfig) Config {
	return Config{
		Level:     c.Level,
		Format:    c.Format,
		AddSource: c.AddSource,
		RedactPII: c.RedactPII,
	}
}

// Logger is a slog logger whose handler stamps context fields on every
// *Context call and, optionally, redacts secrets.
type Logger struct {
	*slog.Logger
	redactor *Redactor
	level    slog.Level
}

// New builds the handler stack: redaction outermost, then context fields,
// then the encoder. Context fields are ids and are not redacted.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var h slog.Handler
	switch format {
	case FormatText:
		h = slog.NewTextHandler(w, opts)
	case FormatConsole:
		opts.ReplaceAttr = dropTime
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	h = contextHandler{next: h}

	l := &Logger{level: level}
	if cfg.RedactPII {
		l.redactor = NewRedactor()
		h = &redactingHandler{next: h, redactor: l.redactor}
	}
	l.Logger = slog.New(h)
	return l, nil
}

// Slog returns the logger to install with slog.SetDefault.
func (l *Logger) Slog() *slog.Logger { return l.Logger }

// Redactor returns the redactor, or nil when redaction is off.
func (l *Logger) Redactor() *Redactor { return l.redactor }

// Level returns the minimum level.
func (l *Logger) Level() slog.Level { return l.level }

// contextHandler appends request_id, listen_port and trace_id from the
// record's context.
type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if fields := extractContextFields(ctx); len(fields) > 0 {
			r = r.Clone()
			r.Add(fields...)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// redactingHandler masks secrets in the message and every attribute,
// including those added through With.
type redactingHandler struct {
	next     slog.Handler
	redactor *Redactor
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.RedactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.RedactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactor.RedactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(masked), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(s string) (slog.Level, error) {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

func parseFormat(s string) (LogFormat, error) {
	switch f := LogFormat(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatConsole:
		return f, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", s)
	}
}
