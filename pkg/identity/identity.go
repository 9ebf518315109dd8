package identity

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// Identity is the caller as established by a verified token.
// The zero value is an anonymous caller.
type Identity struct {
	UserID        string
	Email         string
	Authenticated bool
	// Admin is set only from a signed claim; it is never derived from the email or user id.
	Admin bool
}

// Anonymous returns the identity of a caller without a token.
func Anonymous() Identity {
	return Identity{}
}

// Valid reports whether an authenticated identity carries a user id.
func (id Identity) Valid() bool {
	return id.Authenticated && id.UserID != ""
}

type contextKey struct{ name string }

func (c contextKey) String() string { return c.name }

var identityContextKey = &contextKey{name: "identity"}

// WithIdentity stores id in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext returns the identity stored in ctx, or Anonymous when there is none.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityContextKey).(Identity); ok {
		return id
	}
	return Anonymous()
}

// LogExtractor is a logger.ContextExtractor adding the caller's user id to log records.
func LogExtractor(ctx context.Context) (slog.Attr, bool) {
	id := FromContext(ctx)
	if !id.Valid() {
		return slog.Attr{}, false
	}
	return logger.UserID(id.UserID), true
}
