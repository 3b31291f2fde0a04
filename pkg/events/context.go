package events

import "context"

// ctxKey is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type ctxKey int

const (
	ctxKeySessionID ctxKey = iota
)

// WithSessionID attaches a session identifier to the context so backends
// can stamp it on the events they emit.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// SessionIDFromContext returns the session identifier attached to the
// context, or "" when none is present.
func SessionIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeySessionID); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
