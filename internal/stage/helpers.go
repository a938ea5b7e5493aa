package stage

import (
	"context"
	"log/slog"

	"meetingflow/internal/logging"
)

type loggerKey struct{}

// WithLogger attaches the per-meeting stage logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the stage logger carried by ctx, or fallback enriched with
// the context fields when none is attached.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return logging.WithContext(ctx, fallback)
}

type actorKey struct{}

// WithActor records which worker is running the stage.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the worker recorded by WithActor, or fallback.
func Actor(ctx context.Context, fallback string) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return fallback
}
