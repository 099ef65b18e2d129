package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines durable session persistence. It is the source of truth
// across process restarts; the in-memory index is only a cache over it.
// Implementations must be safe for concurrent use.
type Store interface {
	// Persist inserts a new session row. It returns ErrDuplicateID if
	// the session ID already exists.
	Persist(ctx context.Context, s *Session) error

	// LoadByID returns the active session with the given ID, or
	// ErrNotFound if it is absent or no longer active.
	LoadByID(ctx context.Context, id string) (*Session, error)

	// MarkInactive logically revokes the session. It is idempotent:
	// marking an already-inactive or missing session is not an error.
	MarkInactive(ctx context.Context, id string) error

	// ExtendExpiry moves the session's hard expiry forward. Expiry is
	// only ever extended; an earlier timestamp leaves the row unchanged.
	ExtendExpiry(ctx context.Context, id string, newExpiry time.Time) error

	// UpdateLastActivity records the most recent validation time.
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error

	// DeactivateAllForUser logically revokes every active session owned
	// by the user.
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error

	// ListActiveByUser returns the user's active sessions ordered oldest
	// first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)

	// SweepExpired deactivates every active row past hard expiry or past
	// the idle timeout relative to its last activity, returning how many
	// rows were flipped.
	SweepExpired(ctx context.Context, idleTimeout time.Duration) (int64, error)
}

// Authorizer loads a user's permission and role snapshot. It is consulted
// exactly once per session, at creation time.
type Authorizer interface {
	LoadPermissionsAndRoles(ctx context.Context, userID uuid.UUID) (permissions, roles []string, err error)
}
