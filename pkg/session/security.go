package session

// securityViolationRisk is the audit risk score attached to binding
// mismatches: a valid session ID presented from the wrong client is a
// strong hijack signal.
const securityViolationRisk = 7

// ValidateSessionSecurity checks the session's client bindings against the
// configured policy. IP binding compares the presented client IP with the
// one captured at creation; user-agent binding compares only when the
// caller supplies a non-empty user agent, since many internal callers do
// not carry one. Both checks are off by default.
func (s *Service) ValidateSessionSecurity(sess *Session, clientIP, userAgent string) error {
	if s.cfg.RequireIPMatch && clientIP != sess.IPAddress {
		s.metrics.securityEvent()
		return ErrIPMismatch
	}
	if s.cfg.RequireUAMatch && userAgent != "" && userAgent != sess.UserAgent {
		s.metrics.securityEvent()
		return ErrUserAgentMismatch
	}
	return nil
}
