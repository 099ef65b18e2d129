package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Index is the in-memory session tier: a pair of maps from session ID to
// record and from user ID to that user's session IDs. It is a cache over the
// durable Store, never the source of truth, and is safe for concurrent use
// without caller-side locking. Records are copied on the way in and out so
// callers never share memory with the cache.
type Index struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[uuid.UUID][]string
}

// NewIndex creates an empty session index.
func NewIndex() *Index {
	return &Index{
		sessions: make(map[string]*Session),
		byUser:   make(map[uuid.UUID][]string),
	}
}

// Store upserts the session record. A session ID already present has its
// record replaced without growing the user's ID list.
func (ix *Index) Store(s *Session) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	_, known := ix.sessions[s.ID]
	ix.sessions[s.ID] = s.clone()
	if !known {
		ix.byUser[s.UserID] = append(ix.byUser[s.UserID], s.ID)
	}
}

// Get returns a copy of the cached record, if present.
func (ix *Index) Get(id string) (*Session, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s, ok := ix.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Remove deletes the session from both maps and returns the removed record.
// Removing the last session for a user drops the user entry too.
func (ix *Index) Remove(id string) (*Session, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(id)
}

// removeLocked is Remove without locking. Caller must hold the write lock.
func (ix *Index) removeLocked(id string) (*Session, bool) {
	s, ok := ix.sessions[id]
	if !ok {
		return nil, false
	}
	delete(ix.sessions, id)

	ids := ix.byUser[s.UserID]
	remaining := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			remaining = append(remaining, candidate)
		}
	}
	if len(remaining) > 0 {
		ix.byUser[s.UserID] = remaining
	} else {
		delete(ix.byUser, s.UserID)
	}
	return s, true
}

// RemoveAllForUser atomically removes every cached session for the user and
// returns the removed session IDs.
func (ix *Index) RemoveAllForUser(userID uuid.UUID) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := ix.byUser[userID]
	for _, id := range ids {
		delete(ix.sessions, id)
	}
	delete(ix.byUser, userID)
	return ids
}

// CountForUser returns the number of cached sessions for the user.
func (ix *Index) CountForUser(userID uuid.UUID) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byUser[userID])
}

// OldestForUser returns the ID of the user's oldest cached session by
// creation time.
func (ix *Index) OldestForUser(userID uuid.UUID) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var oldestID string
	var oldestAt time.Time
	for _, id := range ix.byUser[userID] {
		s, ok := ix.sessions[id]
		if !ok {
			continue
		}
		if oldestID == "" || s.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = s.CreatedAt
		}
	}
	return oldestID, oldestID != ""
}

// Touch advances the cached record's LastActivity to at. It never moves the
// timestamp backward: a validation racing on a stale read cannot overwrite a
// newer activity time.
func (ix *Index) Touch(id string, at time.Time) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.sessions[id]
	if !ok {
		return false
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return true
}

// ExtendExpiry moves the cached record's hard expiry forward. Earlier
// timestamps are ignored; expiry is only ever extended.
func (ix *Index) ExtendExpiry(id string, newExpiry time.Time) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s, ok := ix.sessions[id]
	if !ok {
		return false
	}
	if newExpiry.After(s.ExpiresAt) {
		s.ExpiresAt = newExpiry
	}
	return true
}

// SweepExpired removes every cached session past its hard expiry or idle
// timeout at the given instant and returns the removed records.
func (ix *Index) SweepExpired(now time.Time, idleTimeout time.Duration) []*Session {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var removed []*Session
	for id, s := range ix.sessions {
		if s.ExpiredAt(now) || s.IdleAt(now, idleTimeout) {
			if gone, ok := ix.removeLocked(id); ok {
				removed = append(removed, gone)
			}
		}
	}
	return removed
}

// Len returns the number of cached sessions.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.sessions)
}
