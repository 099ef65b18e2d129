package audit

import (
	"context"
	"log/slog"
)

// LogRecorder writes auth events to the process log via slog. It is the
// default sink for deployments without a durable audit store.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a slog-backed recorder. A nil logger uses the
// default slog logger.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record logs the event at info level, or warn for failures.
func (r *LogRecorder) Record(ctx context.Context, event Event) error {
	attrs := []any{
		"event_id", event.ID,
		"type", string(event.Type),
		"outcome", event.Outcome,
		"risk_score", event.RiskScore,
	}
	if event.UserID != nil {
		attrs = append(attrs, "user_id", event.UserID.String())
	}
	if event.SessionID != "" {
		attrs = append(attrs, "session_id", event.SessionID)
	}
	if event.IPAddress != "" {
		attrs = append(attrs, "ip_address", event.IPAddress)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	level := slog.LevelInfo
	if event.Outcome == OutcomeFailure {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "auth event", attrs...)
	return nil
}

// Verify interface compliance.
var _ Recorder = (*LogRecorder)(nil)
