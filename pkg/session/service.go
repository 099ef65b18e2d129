package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fntelecomllc/studio-sessions/pkg/audit"
)

// Service orchestrates the session lifecycle: creation, validation,
// extension, invalidation, per-user limit enforcement, and background
// cleanup. It bridges the in-memory index and the durable store; reads
// prefer the index, writes go to the store first, removals hit the index
// first so a revoked session stops being servable as early as possible.
type Service struct {
	store    Store
	authz    Authorizer
	recorder audit.Recorder
	cfg      Config

	index   *Index
	metrics *metrics

	// now is the injectable clock; tests replace it to simulate idle
	// windows without sleeping.
	now func() time.Time

	// createMu serializes the limit-check/evict/persist window so
	// concurrent creations for one user cannot overshoot the cap.
	createMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a session service over the given store, authorization
// provider, and audit recorder. A nil recorder discards audit events.
func NewService(store Store, authz Authorizer, recorder audit.Recorder, cfg Config) *Service {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		store:    store,
		authz:    authz,
		recorder: recorder,
		cfg:      cfg,
		index:    NewIndex(),
		metrics:  &metrics{},
		now:      time.Now,
	}
}

// CreateSession issues a new session for an already-authenticated user.
// The caller has verified credentials; this only mints the session, snapshots
// the user's permissions and roles, persists the record, and caches it.
// If the user is at the per-user cap, the oldest session is evicted first.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, ipAddress, userAgent string) (*Session, error) {
	id, err := GenerateID(s.cfg.SessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if err := s.enforceSessionLimit(ctx, userID); err != nil {
		return nil, err
	}

	permissions, roles, err := s.authz.LoadPermissionsAndRoles(ctx, userID)
	if err != nil {
		// A session must never be minted with a silently empty
		// permission snapshot.
		return nil, fmt.Errorf("loading permission snapshot: %w", err)
	}

	now := s.now()
	sess := &Session{
		ID:           id,
		UserID:       userID,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Fingerprint:  Fingerprint(ipAddress, userAgent, now),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.cfg.Duration),
		Permissions:  permissions,
		Roles:        roles,
		IsActive:     true,
	}

	// The durable write is the durability boundary: nothing is cached
	// until it succeeds.
	storeCtx, cancel := s.storeContext(ctx)
	err = s.store.Persist(storeCtx, sess)
	cancel()
	if err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return nil, err
		}
		return nil, s.storeUnavailable("persisting session", err)
	}

	s.index.Store(sess)
	s.metrics.sessionCreated()

	s.record(ctx, audit.NewEvent(audit.EventSessionCreated).
		WithUser(userID).
		WithSession(sess.ID).
		WithClient(ipAddress, userAgent).
		WithDetails(map[string]any{
			"expires_at":        sess.ExpiresAt,
			"fingerprint":       sess.Fingerprint,
			"permissions_count": len(permissions),
			"roles_count":       len(roles),
		}))

	return sess, nil
}

// ValidateSession checks that the session exists, is active, is within its
// hard expiry and idle timeout, and passes the configured security policy,
// then refreshes its last-activity time. The in-memory index is consulted
// first; on a miss the durable store is read and the cache repopulated.
func (s *Service) ValidateSession(ctx context.Context, sessionID, clientIP string) (*Session, error) {
	now := s.now()

	sess, hit := s.index.Get(sessionID)
	s.metrics.observeLookup(hit)

	if !hit {
		storeCtx, cancel := s.storeContext(ctx)
		loaded, err := s.store.LoadByID(storeCtx, sessionID)
		cancel()
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, s.storeUnavailable("loading session", err)
		}
		s.index.Store(loaded)
		sess = loaded
	}

	if !sess.IsActive {
		return nil, ErrExpired
	}

	switch {
	case sess.ExpiredAt(now):
		s.expire(ctx, sess, clientIP, "hard_expiry")
		return nil, ErrExpired
	case sess.IdleAt(now, s.cfg.IdleTimeout):
		s.expire(ctx, sess, clientIP, "idle_timeout")
		return nil, ErrExpired
	}

	if err := s.ValidateSessionSecurity(sess, clientIP, ""); err != nil {
		s.record(ctx, audit.NewEvent(audit.EventSecurityViolation).
			WithUser(sess.UserID).
			WithSession(sess.ID).
			WithClient(clientIP, "").
			WithOutcome(audit.OutcomeFailure).
			WithDetails(map[string]any{"violation": err.Error()}).
			WithRiskScore(securityViolationRisk))
		if invErr := s.InvalidateSession(ctx, sessionID); invErr != nil {
			slog.Warn("invalidating session after security violation failed",
				"session_id", sessionID, "error", invErr)
		}
		return nil, err
	}

	// The cache update is synchronous and authoritative within this
	// process; the store write is advisory (audit and cross-process
	// visibility) and may lag.
	s.index.Touch(sessionID, now)
	if now.After(sess.LastActivity) {
		sess.LastActivity = now
	}
	go s.persistActivity(sessionID, now)

	return sess, nil
}

// InvalidateSession revokes a single session: removed from the cache first,
// then marked inactive in the store. Invalidating an already-revoked or
// unknown session is a no-op, and metrics are never double-decremented.
func (s *Service) InvalidateSession(ctx context.Context, sessionID string) error {
	removed, cached := s.index.Remove(sessionID)
	if cached {
		s.metrics.sessionsClosed(1)
	}

	storeCtx, cancel := s.storeContext(ctx)
	err := s.store.MarkInactive(storeCtx, sessionID)
	cancel()
	if err != nil {
		return s.storeUnavailable("marking session inactive", err)
	}

	if cached {
		s.record(ctx, audit.NewEvent(audit.EventSessionInvalidated).
			WithUser(removed.UserID).
			WithSession(sessionID))
	}
	return nil
}

// InvalidateAllUserSessions revokes every session the user holds, in cache
// and store. It backs "log out everywhere" and forced revocation on
// password change or account lock, and is the remediation for the
// creation-time permission snapshot going stale.
func (s *Service) InvalidateAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	removed := s.index.RemoveAllForUser(userID)
	if len(removed) > 0 {
		s.metrics.sessionsClosed(int64(len(removed)))
	}

	storeCtx, cancel := s.storeContext(ctx)
	err := s.store.DeactivateAllForUser(storeCtx, userID)
	cancel()
	if err != nil {
		return s.storeUnavailable("deactivating user sessions", err)
	}

	s.record(ctx, audit.NewEvent(audit.EventAllSessionsInvalidated).
		WithUser(userID).
		WithDetails(map[string]any{"removed_from_cache": len(removed)}))
	return nil
}

// ExtendSession moves the session's hard expiry forward, store first, then
// cache. Expiry is only ever extended: a newExpiry at or before the current
// one is a no-op.
func (s *Service) ExtendSession(ctx context.Context, sessionID string, newExpiry time.Time) error {
	if cached, ok := s.index.Get(sessionID); ok && !newExpiry.After(cached.ExpiresAt) {
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	err := s.store.ExtendExpiry(storeCtx, sessionID, newExpiry)
	cancel()
	if err != nil {
		return s.storeUnavailable("extending session expiry", err)
	}

	s.index.ExtendExpiry(sessionID, newExpiry)
	return nil
}

// Cleanup performs one sweep: expired and idle sessions are purged from the
// in-memory index and the corresponding rows deactivated, then the store is
// bulk-swept to catch sessions this process never cached (created by another
// instance, or expired while the process was down). It returns the total
// number of sessions removed across both tiers.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()

	removed := s.index.SweepExpired(now, s.cfg.IdleTimeout)
	for _, sess := range removed {
		storeCtx, cancel := s.storeContext(ctx)
		err := s.store.MarkInactive(storeCtx, sess.ID)
		cancel()
		if err != nil {
			slog.Warn("deactivating swept session failed", "session_id", sess.ID, "error", err)
		}
	}

	storeCtx, cancel := s.storeContext(ctx)
	swept, sweepErr := s.store.SweepExpired(storeCtx, s.cfg.IdleTimeout)
	cancel()
	if sweepErr != nil {
		sweepErr = s.storeUnavailable("sweeping expired sessions", sweepErr)
	}

	s.metrics.sweepCompleted(int64(len(removed)))

	total := int64(len(removed)) + swept
	if total > 0 {
		s.record(ctx, audit.NewEvent(audit.EventSessionCleanup).
			WithDetails(map[string]any{
				"removed_from_cache": len(removed),
				"removed_from_store": swept,
			}))
	}
	return total, sweepErr
}

// Start launches the background cleanup ticker. One sweep runs at a time;
// call Stop to shut it down.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(ctx); err != nil {
					slog.Warn("session cleanup sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the background cleanup ticker and waits for any in-flight
// sweep to finish. It is safe to call without Start and safe to call while a
// sweep is mid-pass.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
}

// GetMetrics returns a read-only snapshot of the service counters.
func (s *Service) GetMetrics() Metrics {
	return s.metrics.snapshot()
}

// GetConfig returns the immutable session policy.
func (s *Service) GetConfig() Config {
	return s.cfg
}

// enforceSessionLimit evicts the user's oldest sessions until a new one fits
// under the cap. Eviction goes through the normal invalidation path so
// metrics and the audit trail stay consistent. When the cache is cold (for
// example right after a restart) the durable store is consulted instead.
// Caller must hold createMu.
func (s *Service) enforceSessionLimit(ctx context.Context, userID uuid.UUID) error {
	if s.index.CountForUser(userID) > 0 {
		for s.index.CountForUser(userID) >= s.cfg.MaxSessionsPerUser {
			oldestID, ok := s.index.OldestForUser(userID)
			if !ok {
				break
			}
			if err := s.InvalidateSession(ctx, oldestID); err != nil {
				return fmt.Errorf("evicting oldest session: %w", errors.Join(ErrLimitExceeded, err))
			}
		}
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	active, err := s.store.ListActiveByUser(storeCtx, userID)
	cancel()
	if err != nil {
		return s.storeUnavailable("listing active sessions", err)
	}
	for i := 0; len(active)-i >= s.cfg.MaxSessionsPerUser; i++ {
		storeCtx, cancel := s.storeContext(ctx)
		err := s.store.MarkInactive(storeCtx, active[i].ID)
		cancel()
		if err != nil {
			return fmt.Errorf("evicting oldest session: %w", errors.Join(ErrLimitExceeded, err))
		}
	}
	return nil
}

// expire removes a session that validation found past its window: cache
// first, then the store flag, then the audit trail.
func (s *Service) expire(ctx context.Context, sess *Session, clientIP, reason string) {
	if _, cached := s.index.Remove(sess.ID); cached {
		s.metrics.sessionsClosed(1)
	}

	storeCtx, cancel := s.storeContext(ctx)
	err := s.store.MarkInactive(storeCtx, sess.ID)
	cancel()
	if err != nil {
		slog.Warn("deactivating expired session failed", "session_id", sess.ID, "error", err)
	}

	s.record(ctx, audit.NewEvent(audit.EventSessionExpired).
		WithUser(sess.UserID).
		WithSession(sess.ID).
		WithClient(clientIP, "").
		WithDetails(map[string]any{"reason": reason}))
}

// persistActivity writes the last-activity timestamp to the store on its own
// deadline. The write is advisory; failures are logged, never surfaced.
func (s *Service) persistActivity(sessionID string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.UpdateLastActivity(ctx, sessionID, at); err != nil {
		slog.Debug("session activity write failed", "session_id", sessionID, "error", err)
	}
}

// record delivers an audit event fire-and-forget: the audit trail must not
// become a point of failure for authentication.
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if err := s.recorder.Record(context.WithoutCancel(ctx), *event); err != nil {
		slog.Warn("audit record failed", "type", string(event.Type), "error", err)
	}
}

// storeContext bounds a durable-store round trip with the configured
// timeout.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// storeUnavailable wraps a store I/O failure so callers can errors.Is it as
// retriable, distinct from any invalid-session error.
func (s *Service) storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
