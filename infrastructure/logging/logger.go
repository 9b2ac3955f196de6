// Package logging provides a structured, trace-aware logger built on logrus.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with the engine's field conventions.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger for the named service. format is "json" or "text"; any
// other value falls back to "json". level is parsed with logrus.ParseLevel
// and defaults to Info on a parse error.
func New(service, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00"})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a Logger reading LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(service string) *Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// SetOutput redirects log output, primarily for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
)

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID extracts the trace ID, if any, from ctx.
func GetTraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	return v, ok
}

// EnsureTraceID returns ctx unchanged if it already carries a trace ID,
// otherwise returns a new context with a freshly generated one.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id, ok := GetTraceID(ctx); ok && id != "" {
		return ctx, id
	}
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}

// WithContext returns an entry pre-populated with the service name and,
// when present, the trace ID carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{"service": l.service}
	if id, ok := GetTraceID(ctx); ok {
		fields["trace_id"] = id
	}
	return l.Logger.WithFields(fields)
}

// WithFields merges fields on top of the service-scoped entry.
func (l *Logger) WithFields(ctx context.Context, fields logrus.Fields) *logrus.Entry {
	return l.WithContext(ctx).WithFields(fields)
}

// WithError merges an error field on top of the service-scoped entry.
func (l *Logger) WithError(ctx context.Context, err error) *logrus.Entry {
	return l.WithContext(ctx).WithError(err)
}

// LogTransition logs a state-machine transition at info level.
func (l *Logger) LogTransition(ctx context.Context, eventID, from, to string) {
	l.WithFields(ctx, logrus.Fields{
		"event_id": eventID,
		"from":     from,
		"to":       to,
	}).Info("state transition")
}

// LogChainCall logs the outcome of a chain-adapter call.
func (l *Logger) LogChainCall(ctx context.Context, operation, txHash string, err error) {
	entry := l.WithFields(ctx, logrus.Fields{
		"operation": operation,
		"tx_hash":   txHash,
	})
	if err != nil {
		entry.WithError(err).Warn("chain call failed")
		return
	}
	entry.Info("chain call succeeded")
}

// LogPeerCall logs the outcome of a best-effort peer HTTP call.
func (l *Logger) LogPeerCall(ctx context.Context, peer, path string, err error) {
	entry := l.WithFields(ctx, logrus.Fields{"peer": peer, "path": path})
	if err != nil {
		entry.WithError(err).Warn("peer call failed")
		return
	}
	entry.Debug("peer call succeeded")
}
