package sloger

import (
	"context"
	"log/slog"
)

type ContextKey string

var LoggerKey ContextKey = "logger"

var (
	DefaultLogger = slog.Default()
)

func SetDefaultLogger(l *slog.Logger) {
	DefaultLogger = l
}

func With(args ...any) *slog.Logger {
	if DefaultLogger == nil {
		return slog.With(args...)
	}
	return DefaultLogger.With(args...)
}

// WithContext stores l on the returned context.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// SetUploadId scopes the context logger to an upload so every line written while
// handling a report carries its upload id.
func SetUploadId(ctx context.Context, uploadId string) context.Context {
	return WithContext(ctx, GetLogger(ctx).With("uploadId", uploadId))
}

// SetMessage scopes the context logger to an inbound transport message.
func SetMessage(ctx context.Context, source string, messageId string) context.Context {
	return WithContext(ctx, GetLogger(ctx).With("source", source, "messageId", messageId))
}

func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(LoggerKey).(*slog.Logger)
	if !ok {
		// Fallback to the default logger if no logger is found in the context
		if DefaultLogger != nil {
			return DefaultLogger
		}
		return slog.Default()
	}
	return logger
}
