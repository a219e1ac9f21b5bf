package gate

import (
	"context"

	"github.com/quincarter/coffee-app-sub000/pkg/models"
)

type contextKey string

const SessionContextKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

// SessionFromContext returns the session the gate attached to the request.
// ok is false on public paths reached without a session.
func SessionFromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(models.Session)
	return s, ok
}
