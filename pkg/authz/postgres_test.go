package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authzTestUserID = uuid.MustParse("5f0cbd44-9c30-4a2e-8f6b-0b6f6d9f6e21")

func newTestResolver(t *testing.T) (*PostgresResolver, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	resolver := NewPostgresResolver(db)
	resolver.now = func() time.Time {
		return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	}
	return resolver, mock
}

func TestLoadPermissionsAndRoles(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery("SELECT r.name FROM roles").
		WithArgs(authzTestUserID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("admin").
			AddRow("analyst"))
	mock.ExpectQuery("SELECT DISTINCT p.name FROM permissions").
		WithArgs(authzTestUserID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("campaigns:read").
			AddRow("campaigns:write").
			AddRow("users:manage"))

	permissions, roles, err := resolver.LoadPermissionsAndRoles(context.Background(), authzTestUserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"campaigns:read", "campaigns:write", "users:manage"}, permissions)
	assert.Equal(t, []string{"admin", "analyst"}, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPermissionsAndRoles_NoGrants(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery("SELECT r.name FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery("SELECT DISTINCT p.name FROM permissions").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	permissions, roles, err := resolver.LoadPermissionsAndRoles(context.Background(), authzTestUserID)
	require.NoError(t, err)
	assert.Empty(t, permissions)
	assert.Empty(t, roles)
	assert.NotNil(t, permissions)
	assert.NotNil(t, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPermissionsAndRoles_RoleQueryError(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery("SELECT r.name FROM roles").
		WillReturnError(errors.New("connection refused"))

	_, _, err := resolver.LoadPermissionsAndRoles(context.Background(), authzTestUserID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "loading user roles")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPermissionsAndRoles_PermissionQueryError(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery("SELECT r.name FROM roles").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("analyst"))
	mock.ExpectQuery("SELECT DISTINCT p.name FROM permissions").
		WillReturnError(errors.New("connection refused"))

	_, _, err := resolver.LoadPermissionsAndRoles(context.Background(), authzTestUserID)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "loading user permissions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
