package audit

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// NewEvent creates an auth event of the given type with a generated ID and
// the current timestamp.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        generateEventID(),
		Timestamp: time.Now(),
		Type:      eventType,
		Outcome:   OutcomeSuccess,
	}
}

// WithUser attaches the acting user.
func (e *Event) WithUser(userID uuid.UUID) *Event {
	e.UserID = &userID
	return e
}

// WithSession attaches the session the event concerns.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithClient attaches the client address and user agent.
func (e *Event) WithClient(ipAddress, userAgent string) *Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithOutcome sets the event outcome.
func (e *Event) WithOutcome(outcome string) *Event {
	e.Outcome = outcome
	return e
}

// WithDetails attaches sanitized free-form details.
func (e *Event) WithDetails(details map[string]any) *Event {
	e.Details = SanitizeDetails(details)
	return e
}

// WithRiskScore sets the event risk score (0 = routine).
func (e *Event) WithRiskScore(score int) *Event {
	e.RiskScore = score
	return e
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// SanitizeDetails redacts credential-shaped keys from an event detail map.
func SanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	sensitiveKeys := map[string]bool{
		"password":      true,
		"secret":        true,
		"token":         true,
		"api_key":       true,
		"authorization": true,
		"credentials":   true,
	}

	sanitized := make(map[string]any, len(details))
	for k, v := range details {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}
