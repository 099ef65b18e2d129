// Package authz resolves a user's effective permissions and roles from the
// role-based access control tables. Sessions snapshot this resolution at
// creation time; revoking access mid-session is done by invalidating the
// user's sessions, not by re-reading these tables per request.
package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/fntelecomllc/studio-sessions/pkg/session"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresResolver loads permissions and roles from PostgreSQL.
type PostgresResolver struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresResolver creates a resolver over the given database.
func NewPostgresResolver(db *sql.DB) *PostgresResolver {
	return &PostgresResolver{db: db, now: time.Now}
}

// LoadPermissionsAndRoles returns the user's distinct permission names and
// role names. Role grants may carry an expiry; expired grants contribute
// neither roles nor permissions. A user with no grants gets empty slices,
// not an error.
func (r *PostgresResolver) LoadPermissionsAndRoles(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	now := r.now()

	roles, err := r.queryNames(ctx, psq.
		Select("r.name").
		From("roles r").
		Join("user_roles ur ON r.id = ur.role_id").
		Where(sq.Eq{"ur.user_id": userID}).
		Where(sq.Or{
			sq.Eq{"ur.expires_at": nil},
			sq.Gt{"ur.expires_at": now},
		}).
		OrderBy("r.name ASC"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading user roles: %w", err)
	}

	permissions, err := r.queryNames(ctx, psq.
		Select("DISTINCT p.name").
		From("permissions p").
		Join("role_permissions rp ON p.id = rp.permission_id").
		Join("user_roles ur ON rp.role_id = ur.role_id").
		Where(sq.Eq{"ur.user_id": userID}).
		Where(sq.Or{
			sq.Eq{"ur.expires_at": nil},
			sq.Gt{"ur.expires_at": now},
		}).
		OrderBy("p.name ASC"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading user permissions: %w", err)
	}

	return permissions, roles, nil
}

func (r *PostgresResolver) queryNames(ctx context.Context, qb sq.SelectBuilder) ([]string, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// Verify interface compliance.
var _ session.Authorizer = (*PostgresResolver)(nil)
