package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"pitchgate.app/internal/identity"
	"pitchgate.app/internal/obs"
)

type ctxKey string

const attemptIDKey ctxKey = "audit_attempt_id"

// WithAttemptID attaches the reward attempt identifier to the context.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return ctx
	}
	return context.WithValue(ctx, attemptIDKey, attemptID)
}

func attemptIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(attemptIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit record enriched with the user and attempt found in ctx.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []any{slog.String("type", "audit")}
	if aid := attemptIDFromContext(ctx); aid != "" {
		attrs = append(attrs, slog.String("attempt_id", aid))
	}
	if userID, ok := identity.UserIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	group := make([]any, 0, len(fields))
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	obs.Logger().InfoContext(ctx, event, attrs...)
	return nil
}
