package ports

import "context"

// Worker is one periodic task of a power-on session
type Worker interface {
	// Name identifies the worker in logs and launch errors
	Name() string

	// Start prepares the worker's pins. A non-nil error aborts the session.
	Start(ctx context.Context) error

	// Run polls until power turns off or ctx is cancelled.
	// A non-nil error is a hardware failure and ends the session.
	Run(ctx context.Context) error
}

type sessionKey struct{}

// WithSession attaches a session ID to ctx
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFrom returns the session ID attached to ctx, or ""
func SessionFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
