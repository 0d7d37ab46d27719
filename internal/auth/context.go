package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyEntries contextKey = "auth.entries"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, role Role, subject string, entries []string) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	ctx = context.WithValue(ctx, contextKeyEntries, entries)
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}

// EntriesFromContext extracts the token's entry scope from context. A nil
// or empty scope means unrestricted.
func EntriesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	value := ctx.Value(contextKeyEntries)
	if entries, ok := value.([]string); ok {
		return entries
	}
	return nil
}

// EntryAllowed reports whether the context's entry scope permits access
// to the given entry id.
func EntryAllowed(ctx context.Context, entryID string) bool {
	entries := EntriesFromContext(ctx)
	if len(entries) == 0 {
		return true
	}
	for _, allowed := range entries {
		if allowed == entryID {
			return true
		}
	}
	return false
}
