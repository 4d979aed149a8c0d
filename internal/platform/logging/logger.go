// Package logging provides structured JSON logging with correlation-ID
// propagation through context.Context, merging the two logging idioms the
// teacher uses in different services: pkg/logger's construction/formatting
// and infrastructure/logging's context-carried trace ID and structured
// helper methods. print-style output is forbidden anywhere in this module.
package logging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dispatchcore/platform/internal/validation"
)

// ctxKey is an unexported type so context keys never collide across
// packages.
type ctxKey string

const (
	correlationIDKey ctxKey = "correlation_id"
	userIDKey        ctxKey = "user_id"
)

// Logger wraps logrus.Logger with the dispatch-core service name attached
// to every entry.
type Logger struct {
	*logrus.Logger
	service string
}

// New builds a Logger for the given service name, level ("debug", "info",
// ...), and format ("json" or "text").
func New(service, level, format string) *Logger {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	return &Logger{Logger: l, service: service}
}

// NewCorrelationID generates a new correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID stores a correlation ID in ctx. It crosses goroutine and
// async-continuation boundaries because it travels on context.Context,
// which callers are required to propagate into worker tasks and outbound
// calls (spec.md §4.8, §9).
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID retrieves the correlation ID from ctx, or "" if absent.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores a user id in ctx for log enrichment.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// entry builds a logrus.Entry carrying service + correlation id + user id
// (when present in ctx).
func (l *Logger) entry(ctx context.Context) *logrus.Entry {
	e := l.Logger.WithField("service", l.service)
	if id := CorrelationID(ctx); id != "" {
		e = e.WithField("correlation_id", id)
	}
	if uid, ok := ctx.Value(userIDKey).(int64); ok {
		e = e.WithField("user_id", uid)
	}
	return e
}

// Info logs an info-level structured message.
func (l *Logger) Info(ctx context.Context, msg string, fields map[string]any) {
	l.entry(ctx).WithFields(fields).Info(msg)
}

// Warn logs a warning-level structured message.
func (l *Logger) Warn(ctx context.Context, msg string, fields map[string]any) {
	l.entry(ctx).WithFields(fields).Warn(msg)
}

// Error logs an error with full context: correlation id, masked phone, and
// entity ids. Every catch site in this codebase is required to call this
// (or Warn for recoverable conditions) rather than swallow the error
// silently — see spec.md §7.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	e := l.entry(ctx)
	if err != nil {
		e = e.WithError(err)
	}
	e.WithFields(fields).Error(msg)
}

// WithPhone attaches a masked phone number field. This is the only call
// site in the codebase permitted to put a phone number into a log field —
// masking happens here, not at each caller.
func (l *Logger) WithPhone(ctx context.Context, phone string) *logrus.Entry {
	return l.entry(ctx).WithField("phone", validation.PhoneMask(phone))
}

// LogSecurityEvent records an anomalous condition (e.g. unrecognized role,
// rejected state transition attempted outside force_state) at warn level
// with a stable event_type field for downstream alerting.
func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, details map[string]any) {
	fields := logrus.Fields{"event_type": eventType, "severity": "security"}
	for k, v := range details {
		fields[k] = v
	}
	l.entry(ctx).WithFields(fields).Warn("security event")
}

// LogAudit records a governance action (station owner/dispatcher changes,
// force-state resets) for later audit trail reconstruction.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.entry(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit log")
}
