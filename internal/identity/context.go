package identity

import (
	"context"
	"strings"
)

type userIDContextKey struct{}

// ContextWithUser attaches the authenticated user id to the context.
func ContextWithUser(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext extracts the user id stored by ContextWithUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userIDContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
