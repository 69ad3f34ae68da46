package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

const LevelTrace = slog.Level(-8)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ParseLevel maps a config level name onto a slog level. Unknown names fall
// back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SlogProvider hands out named glog loggers backed by one slog handler.
type SlogProvider struct {
	base *slog.Logger
}

func NewSlogProvider(base *slog.Logger) *SlogProvider {
	if base == nil {
		base = slog.Default()
	}
	return &SlogProvider{base: base}
}

// NewJSONProvider writes JSON lines to w at the given level.
func NewJSONProvider(w io.Writer, level string) *SlogProvider {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return NewSlogProvider(slog.New(handler))
}

func (p *SlogProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.base == nil {
		return glog.Nop()
	}
	base := p.base
	if name = strings.TrimSpace(name); name != "" {
		base = base.With("logger", name)
	}
	return &SlogLogger{base: base, ctx: context.Background()}
}

type SlogLogger struct {
	base *slog.Logger
	ctx  context.Context
	exit func(code int)
}

func (l *SlogLogger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, append(args, "fatal", true)...)
	if l != nil && l.exit != nil {
		l.exit(1)
		return
	}
	os.Exit(1)
}

func (l *SlogLogger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &SlogLogger{base: l.base, ctx: ctx, exit: l.exit}
}

// WithFields attaches fields in key order so output is stable.
func (l *SlogLogger) WithFields(fields map[string]any) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return &SlogLogger{base: l.base.With(args...), ctx: l.ctx, exit: l.exit}
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.base == nil {
		return
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.base.Log(ctx, level, msg, args...)
}

var (
	_ glog.LoggerProvider = (*SlogProvider)(nil)
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.FieldsLogger   = (*SlogLogger)(nil)
)
