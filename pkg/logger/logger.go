package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/escrowpay-backend/pkg/env"
)

// Options configures New. Format is "json" or "console"; when empty it is
// read from ESCROWPAY_LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

// Logger writes zerolog entries enriched with fields carried on the context.
// Fields attached through WithField and WithFields pass through RedactFields,
// so phone numbers and card data never reach the sink in full.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New builds a service logger.
func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.Get("ESCROWPAY_LOG_FORMAT", "json")
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	base := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{base: base, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := l.from(ctx).With().Fields(RedactFields(fields)).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

// WithField returns ctx carrying one more log field.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, map[string]any{key: value})
}

// WithFields returns ctx carrying fields. The map is not retained.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return l.with(ctx, copied)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

func (l *Logger) WithVendorID(ctx context.Context, vendorID string) context.Context {
	return l.WithField(ctx, "vendor_id", vendorID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.WithField(ctx, "actor_role", role)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stack())
	}
	event.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

// Critical marks failures that page someone: a misconfigured gateway, or a
// ledger write that diverged from what the gateway settled.
func (l *Logger) Critical(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().
		Str("severity", "critical").
		Bool("alert", true).
		Err(err).
		Str("stack", stack()).
		Msg(msg)
}

// Security records rejected inbound traffic such as forged webhooks.
func (l *Logger) Security(ctx context.Context, msg string, reason string) {
	l.from(ctx).Warn().
		Str("category", "security").
		Str("reason", reason).
		Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
