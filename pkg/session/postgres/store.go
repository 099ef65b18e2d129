// Package postgres provides PostgreSQL storage for sessions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fntelecomllc/studio-sessions/pkg/session"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation, raised on a session ID collision.
const uniqueViolation = "23505"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "user_id", "ip_address", "user_agent", "fingerprint",
	"created_at", "last_activity", "expires_at", "permissions", "roles",
	"is_active",
}

// Store implements session.Store using PostgreSQL. Reads only ever return
// active sessions; revoked and swept rows stay in the table for the audit
// trail but are invisible to lookups.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Persist inserts a new session row.
func (s *Store) Persist(ctx context.Context, sess *session.Session) error {
	query, args, err := psq.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			sess.ID,
			sess.UserID,
			sess.IPAddress,
			sess.UserAgent,
			sess.Fingerprint,
			sess.CreatedAt,
			sess.LastActivity,
			sess.ExpiresAt,
			pq.Array(sess.Permissions),
			pq.Array(sess.Roles),
			sess.IsActive,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("session %s: %w", sess.ID, session.ErrDuplicateID)
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// LoadByID retrieves an active session by ID. Inactive and unknown sessions
// both report session.ErrNotFound; a revoked ID is indistinguishable from one
// that never existed.
func (s *Store) LoadByID(ctx context.Context, sessionID string) (*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"id": sessionID, "is_active": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session select: %w", err)
	}

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// MarkInactive flips a session's active flag off. Unknown and
// already-inactive sessions are a no-op.
func (s *Store) MarkInactive(ctx context.Context, sessionID string) error {
	query, args, err := psq.Update("sessions").
		Set("is_active", false).
		Where(sq.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session deactivate: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivating session: %w", err)
	}
	return nil
}

// ExtendExpiry moves a session's expiry forward. The guard in the WHERE
// clause makes the write monotonic: a newExpiry at or before the stored one
// changes nothing.
func (s *Store) ExtendExpiry(ctx context.Context, sessionID string, newExpiry time.Time) error {
	query, args, err := psq.Update("sessions").
		Set("expires_at", newExpiry).
		Where(sq.Eq{"id": sessionID, "is_active": true}).
		Where(sq.Lt{"expires_at": newExpiry}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building expiry update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("extending session expiry: %w", err)
	}
	return nil
}

// UpdateLastActivity records the session's most recent use. The guard keeps
// the timestamp monotonic when writes land out of order.
func (s *Store) UpdateLastActivity(ctx context.Context, sessionID string, at time.Time) error {
	query, args, err := psq.Update("sessions").
		Set("last_activity", at).
		Where(sq.Eq{"id": sessionID, "is_active": true}).
		Where(sq.Lt{"last_activity": at}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building activity update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating session activity: %w", err)
	}
	return nil
}

// DeactivateAllForUser revokes every active session the user holds.
func (s *Store) DeactivateAllForUser(ctx context.Context, userID uuid.UUID) error {
	query, args, err := psq.Update("sessions").
		Set("is_active", false).
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building bulk deactivate: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deactivating user sessions: %w", err)
	}
	return nil
}

// ListActiveByUser returns the user's active sessions ordered oldest first,
// the order limit enforcement evicts in.
func (s *Store) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*session.Session, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"user_id": userID, "is_active": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing user sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("listing user sessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// SweepExpired deactivates every active session whose hard expiry or idle
// window has passed, and reports how many rows it touched. Timestamps are
// computed in Go so the cutoffs match the service's clock, not the
// database's.
func (s *Store) SweepExpired(ctx context.Context, idleTimeout time.Duration) (int64, error) {
	now := s.now()

	query, args, err := psq.Update("sessions").
		Set("is_active", false).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Or{
			sq.LtOrEq{"expires_at": now},
			sq.Lt{"last_activity": now.Add(-idleTimeout)},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building expiry sweep: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting swept sessions: %w", err)
	}
	return swept, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.IPAddress,
		&sess.UserAgent,
		&sess.Fingerprint,
		&sess.CreatedAt,
		&sess.LastActivity,
		&sess.ExpiresAt,
		pq.Array(&sess.Permissions),
		pq.Array(&sess.Roles),
		&sess.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
