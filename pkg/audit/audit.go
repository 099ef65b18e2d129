// Package audit provides the authentication audit trail. The session
// service records events through the Recorder interface fire-and-forget: a
// failing audit sink is logged and dropped, never allowed to fail the
// session operation it describes.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes auth events.
type EventType string

const (
	// EventSessionCreated is recorded when a session is issued.
	EventSessionCreated EventType = "session_created"

	// EventSessionExpired is recorded when validation finds a session
	// past its hard expiry or idle timeout.
	EventSessionExpired EventType = "session_expired"

	// EventSecurityViolation is recorded when a session fails an IP or
	// user-agent consistency check.
	EventSecurityViolation EventType = "session_security_violation"

	// EventSessionInvalidated is recorded on explicit revocation.
	EventSessionInvalidated EventType = "session_invalidated"

	// EventAllSessionsInvalidated is recorded on a bulk per-user
	// revocation ("log out everywhere").
	EventAllSessionsInvalidated EventType = "all_sessions_invalidated"

	// EventSessionCleanup is recorded when a background sweep removes at
	// least one session.
	EventSessionCleanup EventType = "session_cleanup"
)

// Event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is a single auth-trail entry.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Outcome   string         `json:"outcome"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RiskScore int            `json:"risk_score"`
}

// Recorder persists auth events.
type Recorder interface {
	// Record stores one event.
	Record(ctx context.Context, event Event) error
}

// Nop is a Recorder that discards every event.
type Nop struct{}

// Record discards the event.
func (Nop) Record(context.Context, Event) error { return nil }

// Verify interface compliance.
var _ Recorder = Nop{}
