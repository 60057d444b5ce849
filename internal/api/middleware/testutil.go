package middleware

import "context"

// WithTestUserID injects a user ID into the context for handler tests that
// bypass the auth middleware.
func WithTestUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
