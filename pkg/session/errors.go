package session

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the session service. Callers distinguish them
// with errors.Is so the surrounding layer can choose remediation: "please log
// in" for ErrNotFound, "your session expired" for ErrExpired, and a
// heightened response (e.g. forced re-authentication) for
// ErrSecurityViolation.
var (
	// ErrNotFound means the session is absent from both the in-memory
	// index and the durable store.
	ErrNotFound = errors.New("session not found")

	// ErrExpired means the session passed its hard expiry or idle
	// timeout, or was logically revoked.
	ErrExpired = errors.New("session expired")

	// ErrSecurityViolation means the session failed an IP or user-agent
	// consistency check. The session is invalidated as a side effect.
	ErrSecurityViolation = errors.New("session security violation")

	// ErrIPMismatch is a security violation caused by a client IP change.
	ErrIPMismatch = fmt.Errorf("%w: ip address mismatch", ErrSecurityViolation)

	// ErrUserAgentMismatch is a security violation caused by a user-agent change.
	ErrUserAgentMismatch = fmt.Errorf("%w: user agent mismatch", ErrSecurityViolation)

	// ErrLimitExceeded means the per-user session cap was reached and
	// evicting the oldest session failed to make room.
	ErrLimitExceeded = errors.New("session limit exceeded")

	// ErrDuplicateID means the durable store already holds a session with
	// the generated ID. With the configured entropy this should never
	// happen; it is handled, not assumed impossible.
	ErrDuplicateID = errors.New("duplicate session id")

	// ErrStoreUnavailable means a durable-store round trip failed or
	// timed out. It is retriable and must never be read as "session
	// invalid".
	ErrStoreUnavailable = errors.New("session store unavailable")
)
