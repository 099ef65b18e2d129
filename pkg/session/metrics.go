package session

import "sync"

// hitRateWeight is the per-observation weight of the cache-hit-rate
// exponential moving average.
const hitRateWeight = 0.1

// Metrics is a read-only snapshot of session service counters.
type Metrics struct {
	// TotalSessions is the number of sessions ever created by this
	// service instance.
	TotalSessions int64

	// ActiveSessions is the number of currently active sessions.
	ActiveSessions int64

	// CacheHitRate is a decayed moving average of the fraction of
	// validations served from the in-memory index.
	CacheHitRate float64

	// CleanupCount is the number of background sweeps performed.
	CleanupCount int64

	// SecurityEvents is the number of IP/user-agent policy violations.
	SecurityEvents int64
}

// metrics is the mutable aggregate owned by a Service instance. Every
// read-modify-write goes through its lock so concurrent call sites cannot
// lose updates.
type metrics struct {
	mu             sync.Mutex
	totalSessions  int64
	activeSessions int64
	cacheHitRate   float64
	cleanupCount   int64
	securityEvents int64
}

// sessionCreated records a new active session.
func (m *metrics) sessionCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalSessions++
	m.activeSessions++
}

// sessionsClosed records n sessions leaving the active set.
func (m *metrics) sessionsClosed(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeSessions -= n
}

// observeLookup folds one validation's cache outcome into the moving average.
func (m *metrics) observeLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	observation := 0.0
	if hit {
		observation = 1.0
	}
	m.cacheHitRate = m.cacheHitRate*(1-hitRateWeight) + observation*hitRateWeight
}

// sweepCompleted records one background sweep that removed n cached sessions.
func (m *metrics) sweepCompleted(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCount++
	m.activeSessions -= n
}

// securityEvent records one policy violation.
func (m *metrics) securityEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.securityEvents++
}

// snapshot returns a copy safe to hand to callers.
func (m *metrics) snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		TotalSessions:  m.totalSessions,
		ActiveSessions: m.activeSessions,
		CacheHitRate:   m.cacheHitRate,
		CleanupCount:   m.cleanupCount,
		SecurityEvents: m.securityEvents,
	}
}
