// Package observability provides logging helpers for vidarr.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/masq"
	"github.com/vibeacademy/vidarr/internal/config"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"
	// loggerKey is the context key for the logger.
	loggerKey contextKey = "logger"
)

// LevelTrace is a custom level below debug for very verbose output
// (encoder argument dumps, raw service payloads).
const LevelTrace = slog.Level(-8)

// levelVar allows runtime log level changes across all loggers built here.
var levelVar = new(slog.LevelVar)

// redactedMarker replaces sensitive values in log output.
const redactedMarker = "[REDACTED]"

// sensitiveKeys are attribute names whose values are never logged.
var sensitiveKeys = map[string]bool{
	"password":   true,
	"secret":     true,
	"token":      true,
	"apikey":     true,
	"api_key":    true,
	"credential": true,
	"secret_key": true,
	"access_key": true,
}

// sensitiveURLParam matches credential-bearing query parameters in URLs.
var sensitiveURLParam = regexp.MustCompile(`(?i)([?&](?:password|token|apikey|api_key|secret|credential|access_key|secret_key)=)([^&\s"]+)`)

// NewLogger creates a new slog.Logger based on the provided configuration.
// The logger supports JSON and text formats with configurable log levels.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a new slog.Logger that writes to the provided writer.
// Service credentials are redacted from all output: sensitive attribute names,
// credential-bearing URL query parameters, struct fields named APIKey/SecretKey,
// and types tagged `masq:"secret"`.
func NewLoggerWithWriter(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	levelVar.Set(parseLevel(cfg.Level))

	structRedact := masq.New(
		masq.WithFieldName("APIKey"),
		masq.WithFieldName("SecretKey"),
		masq.WithTag("secret"),
	)

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a = redactAttr(a)
			a = structRedact(groups, a)
			switch a.Key {
			case slog.SourceKey:
				// Shorten source to a relative "logpos" reference.
				if src, ok := a.Value.Any().(*slog.Source); ok {
					return slog.String("logpos", shortSource(src))
				}
			case slog.LevelKey:
				// Name the custom trace level; slog would print "DEBUG-4".
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					return slog.String(slog.LevelKey, "TRACE")
				}
			case slog.TimeKey:
				if cfg.TimeFormat != "" {
					if t, ok := a.Value.Any().(time.Time); ok {
						return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
					}
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		// JSON is the default for unknown formats
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// redactAttr hides sensitive attribute values and scrubs credential-bearing
// query parameters from URL-valued attributes.
func redactAttr(a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redactedMarker)
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		if strings.Contains(s, "=") && (strings.Contains(s, "?") || strings.Contains(s, "&")) {
			if scrubbed := sensitiveURLParam.ReplaceAllString(s, "${1}"+redactedMarker); scrubbed != s {
				return slog.String(a.Key, scrubbed)
			}
		}
	}
	return a
}

// shortSource trims a source position to the path relative to the module root.
func shortSource(src *slog.Source) string {
	file := src.File
	if idx := strings.Index(file, "internal/"); idx >= 0 {
		file = file[idx:]
	} else if idx := strings.Index(file, "cmd/"); idx >= 0 {
		file = file[idx:]
	}
	return file + ":" + itoa(src.Line)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel changes the level of all loggers created by this package at runtime.
func SetLogLevel(level string) {
	levelVar.Set(parseLevel(level))
}

// WithApp adds an application name to the logger.
func WithApp(logger *slog.Logger, app string) *slog.Logger {
	return logger.With(slog.String("app", app))
}

// WithRequestID adds a request ID to the logger.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String("request_id", requestID))
}

// WithComponent adds a component name to the logger for identifying the source.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithOperation adds an operation name to the logger for tracking specific operations.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String("operation", operation))
}

// WithProject adds a project ID to the logger.
func WithProject(logger *slog.Logger, projectID string) *slog.Logger {
	return logger.With(slog.String("project_id", projectID))
}

// WithError adds an error to the logger attributes.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// LoggerFromContext extracts a logger from the context.
// If no logger is found, returns the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// RequestIDFromContext extracts a request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// SetDefault sets the provided logger as the default slog logger.
// This affects all code using slog.Info(), slog.Error(), etc. without a specific logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperation logs the start and end of an operation with duration.
// Returns a function that should be deferred to log the completion.
//
// Usage:
//
//	done := observability.TimedOperation(ctx, logger, "transcode")
//	defer done()
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string) func() {
	start := time.Now()
	logger.InfoContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		duration := time.Since(start)
		logger.InfoContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
		)
	}
}

// TimedOperationWithError is like TimedOperation but accepts an error pointer
// to determine success/failure status. The error pointer is required because
// the error value may be set after calling this function but before the
// returned done function is called.
//
// Usage:
//
//	var err error
//	done := observability.TimedOperationWithError(ctx, logger, "transcode", &err)
//	defer done()
//	err = doSomething()
func TimedOperationWithError(ctx context.Context, logger *slog.Logger, operation string, errPtr *error) func() {
	start := time.Now()
	logger.InfoContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		duration := time.Since(start)
		if errPtr != nil && *errPtr != nil {
			logger.ErrorContext(ctx, "operation failed",
				slog.String("operation", operation),
				slog.Duration("duration", duration),
				slog.String("error", (*errPtr).Error()),
			)
		} else {
			logger.InfoContext(ctx, "operation completed",
				slog.String("operation", operation),
				slog.Duration("duration", duration),
			)
		}
	}
}
