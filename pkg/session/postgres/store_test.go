package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fntelecomllc/studio-sessions/pkg/session"
)

const (
	pgTestSessID      = "a1b2c3d4e5f6a7b8"
	pgTestIdleTimeout = 30 * time.Minute
	pgTestSweptRows   = 3
)

var pgTestUserID = uuid.MustParse("5f0cbd44-9c30-4a2e-8f6b-0b6f6d9f6e21")

func newTestSession() *session.Session {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	return &session.Session{
		ID:           pgTestSessID,
		UserID:       pgTestUserID,
		IPAddress:    "203.0.113.10",
		UserAgent:    "studio-client/1.0",
		Fingerprint:  "0011223344556677",
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(2 * time.Hour),
		Permissions:  []string{"campaigns:read", "campaigns:write"},
		Roles:        []string{"analyst"},
		IsActive:     true,
	}
}

func sessionRow(sess *session.Session) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		sess.ID, sess.UserID, sess.IPAddress, sess.UserAgent, sess.Fingerprint,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt,
		pq.Array(sess.Permissions), pq.Array(sess.Roles), sess.IsActive,
	)
}

func TestPersist_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	mock.ExpectExec("INSERT INTO sessions").WithArgs(
		sess.ID, sess.UserID, sess.IPAddress, sess.UserAgent, sess.Fingerprint,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt,
		pq.Array(sess.Permissions), pq.Array(sess.Roles), sess.IsActive,
	).WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Persist(context.Background(), sess)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_DuplicateID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err = store.Persist(context.Background(), newTestSession())
	assert.ErrorIs(t, err, session.ErrDuplicateID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("connection refused"))

	err = store.Persist(context.Background(), newTestSession())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "inserting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadByID_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	sess := newTestSession()

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs(pgTestSessID, true).
		WillReturnRows(sessionRow(sess))

	got, err := store.LoadByID(context.Background(), pgTestSessID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pgTestSessID, got.ID)
	assert.Equal(t, pgTestUserID, got.UserID)
	assert.Equal(t, []string{"campaigns:read", "campaigns:write"}, got.Permissions)
	assert.Equal(t, []string{"analyst"}, got.Roles)
	assert.True(t, got.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs("nonexistent", true).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	got, err := store.LoadByID(context.Background(), "nonexistent")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadByID_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WillReturnError(errors.New("connection refused"))

	_, err = store.LoadByID(context.Background(), pgTestSessID)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInactive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET is_active").
		WithArgs(false, pgTestSessID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.MarkInactive(context.Background(), pgTestSessID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInactive_UnknownSessionIsNoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET is_active").
		WithArgs(false, "nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.MarkInactive(context.Background(), "nonexistent")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendExpiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	newExpiry := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE sessions SET expires_at").
		WithArgs(newExpiry, pgTestSessID, true, newExpiry).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.ExtendExpiry(context.Background(), pgTestSessID, newExpiry)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLastActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	at := time.Date(2025, 6, 15, 11, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE sessions SET last_activity").
		WithArgs(at, pgTestSessID, true, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.UpdateLastActivity(context.Background(), pgTestSessID, at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAllForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET is_active").
		WithArgs(false, true, pgTestUserID).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err = store.DeactivateAllForUser(context.Background(), pgTestUserID)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)
	first := newTestSession()
	second := newTestSession()
	second.ID = "b2c3d4e5f6a7b8c9"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	rows := sessionRow(first).AddRow(
		second.ID, second.UserID, second.IPAddress, second.UserAgent, second.Fingerprint,
		second.CreatedAt, second.LastActivity, second.ExpiresAt,
		pq.Array(second.Permissions), pq.Array(second.Roles), second.IsActive,
	)
	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs(true, pgTestUserID).
		WillReturnRows(rows)

	got, err := store.ListActiveByUser(context.Background(), pgTestUserID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveByUser_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectQuery("SELECT .+ FROM sessions").
		WithArgs(true, pgTestUserID).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	got, err := store.ListActiveByUser(context.Background(), pgTestUserID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	store := New(db)
	store.now = func() time.Time { return now }

	mock.ExpectExec("UPDATE sessions SET is_active").
		WithArgs(false, true, now, now.Add(-pgTestIdleTimeout)).
		WillReturnResult(sqlmock.NewResult(0, pgTestSweptRows))

	swept, err := store.SweepExpired(context.Background(), pgTestIdleTimeout)
	require.NoError(t, err)
	assert.Equal(t, int64(pgTestSweptRows), swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpired_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := New(db)

	mock.ExpectExec("UPDATE sessions SET is_active").
		WillReturnError(errors.New("connection refused"))

	_, err = store.SweepExpired(context.Background(), pgTestIdleTimeout)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sweeping expired sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
