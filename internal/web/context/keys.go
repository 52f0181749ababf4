package context

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	subjectKey
	rolesKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetSubject returns the subject of the verified bearer token
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}

// SetSubject adds the token subject to the context
func SetSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// GetRoles returns the roles of the verified bearer token
func GetRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey).([]string); ok {
		return roles
	}
	return nil
}

// SetRoles adds the token roles to the context
func SetRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, roles)
}
