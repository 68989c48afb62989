// Package telemetry defines the fire-and-forget security event sink used by
// the token and session code paths. Events are best-effort: they are never
// awaited for correctness and failures only get logged.
package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the session manager and auth interceptor.
const (
	EventLogin           = "login"
	EventLogout          = "logout"
	EventTokenRotation   = "token_rotation"
	EventHighRiskBlocked = "high_risk_blocked"
	EventSessionEvicted  = "session_evicted"
	EventAccountLocked   = "account_locked"
)

// Event is one security-relevant occurrence.
type Event struct {
	Type      string
	UserID    string
	SessionID string
	IPAddress string
	Detail    string
	CreatedAt time.Time
}

// EventEmitter emits security events (e.g. as OTel log records). Callers
// treat Emit as best-effort and ignore errors beyond logging.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
