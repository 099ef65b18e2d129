// Package session provides the session lifecycle and security-validation
// engine for the platform. It issues, validates, extends, and revokes
// authenticated sessions backed by a fast in-memory index and a durable
// Store, enforces per-user session limits, and sweeps expired sessions in
// the background.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated user session.
type Session struct {
	// ID is the unique, opaque session identifier. It is never reused,
	// even after the session is invalidated.
	ID string

	// UserID identifies the session owner.
	UserID uuid.UUID

	// IPAddress and UserAgent are captured at creation time and used for
	// optional consistency checks. They are advisory signals, not a
	// security boundary on their own.
	IPAddress string
	UserAgent string

	// Fingerprint is a derived client fingerprint (ip + user agent +
	// creation-time salt). It signals anomalous reuse; it is not a secret.
	Fingerprint string

	// CreatedAt is when the session was established.
	CreatedAt time.Time

	// LastActivity is the most recent successful validation time.
	LastActivity time.Time

	// ExpiresAt is the hard expiry. It is set at creation and only ever
	// extended, never shortened.
	ExpiresAt time.Time

	// Permissions and Roles are snapshotted from the authorization
	// provider at creation time and never re-read per request. Privilege
	// changes therefore take effect only after re-login or an explicit
	// InvalidateAllUserSessions.
	Permissions []string
	Roles       []string

	// IsActive is false once the session has been logically revoked,
	// even if the durable row has not been purged yet.
	IsActive bool
}

// ExpiredAt reports whether the session has passed its hard expiry at the
// given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IdleAt reports whether the session has been inactive longer than the
// given idle timeout at the given instant.
func (s *Session) IdleAt(now time.Time, idleTimeout time.Duration) bool {
	return now.Sub(s.LastActivity) > idleTimeout
}

// HasPermission reports whether the creation-time snapshot contains the
// named permission.
func (s *Session) HasPermission(name string) bool {
	for _, p := range s.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// clone returns a deep copy so cached records never escape the index.
func (s *Session) clone() *Session {
	cp := *s
	if s.Permissions != nil {
		cp.Permissions = append([]string(nil), s.Permissions...)
	}
	if s.Roles != nil {
		cp.Roles = append([]string(nil), s.Roles...)
	}
	return &cp
}

// Config holds the immutable session policy supplied at service construction.
type Config struct {
	// Duration is the hard expiry window for new sessions.
	Duration time.Duration

	// IdleTimeout is the maximum allowed gap since last activity.
	IdleTimeout time.Duration

	// CleanupInterval is the background sweep period.
	CleanupInterval time.Duration

	// MaxSessionsPerUser caps concurrently active sessions per user.
	// Creating beyond the cap evicts that user's oldest session.
	MaxSessionsPerUser int

	// SessionIDLength is the length of generated session IDs in hex
	// characters.
	SessionIDLength int

	// RequireIPMatch rejects validations from an IP other than the one
	// the session was created from. Disabled by default: NAT and mobile
	// roaming produce legitimate IP churn.
	RequireIPMatch bool

	// RequireUAMatch rejects validations with a user agent differing from
	// the creation-time one. Disabled by default: browser updates rotate
	// user agents.
	RequireUAMatch bool

	// StoreTimeout bounds each durable-store round trip. A slow store
	// surfaces as ErrStoreUnavailable, never as an invalid session.
	StoreTimeout time.Duration
}

// DefaultConfig returns the default session policy.
func DefaultConfig() Config {
	return Config{
		Duration:           2 * time.Hour,
		IdleTimeout:        30 * time.Minute,
		CleanupInterval:    5 * time.Minute,
		MaxSessionsPerUser: 5,
		SessionIDLength:    defaultIDLength,
		RequireIPMatch:     false,
		RequireUAMatch:     false,
		StoreTimeout:       5 * time.Second,
	}
}

// applyDefaults fills zero-valued fields with defaults.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Duration == 0 {
		c.Duration = def.Duration
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.MaxSessionsPerUser == 0 {
		c.MaxSessionsPerUser = def.MaxSessionsPerUser
	}
	if c.SessionIDLength == 0 {
		c.SessionIDLength = def.SessionIDLength
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = def.StoreTimeout
	}
}
