package session

import "context"

type sessionMetaContextKey string

const sessionIDContextKey sessionMetaContextKey = "session_id"

// WithSessionID stores the session identifier in ctx so tool handlers can
// correlate work for a single session.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// SessionIDFromContext returns the identifier attached with WithSessionID,
// or "" when unavailable.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	sessionID, _ := ctx.Value(sessionIDContextKey).(string)
	return sessionID
}
