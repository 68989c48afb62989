// Package domain holds the session entity and its pure validity and risk
// predicates. All time-dependent checks take an explicit now so callers and
// tests control the clock.
package domain

import "time"

// Defaults for session lifetime bounds and risk scoring.
const (
	DefaultMaxIdle     = 24 * time.Hour
	DefaultAbsoluteMax = 7 * 24 * time.Hour

	// DefaultHighRiskThreshold is the risk score above which refresh
	// operations are blocked.
	DefaultHighRiskThreshold = 0.7

	riskIPChange        = 0.3
	riskUserAgentChange = 0.2
	riskPerExtraAttempt = 0.2
	riskOldSession      = 0.1
	riskLongIdle        = 0.1

	oldSessionAge = 3 * 24 * time.Hour
	longIdleTime  = 12 * time.Hour
)

// SecurityInfo captures the environmental signals observed for a session.
// RiskScore here accumulates only the churn increments (IP and user-agent
// changes); the full session risk is recomputed on demand by
// Session.RiskScore.
type SecurityInfo struct {
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	IsSuspicious      bool
	RiskScore         float64
}

// Session is the authenticated runtime object for one login. Instances are
// owned exclusively by the session manager; concurrent access goes through
// its store lock.
type Session struct {
	ID             string
	UserID         string
	Username       string
	Email          string
	CreatedAt      time.Time
	LastActivityAt time.Time
	AccessToken    string
	RefreshToken   string
	// RefreshTokenHash is the SHA-256 hash of RefreshToken, kept so refresh
	// requests can be compared in constant time.
	RefreshTokenHash string
	TokenFamily      string
	Security         SecurityInfo
	LoginAttempts    int
	MaxIdle          time.Duration
	AbsoluteMax      time.Duration
}

// IdleExpired reports whether the session has been inactive longer than its
// idle bound.
func (s *Session) IdleExpired(now time.Time) bool {
	maxIdle := s.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return now.Sub(s.LastActivityAt) > maxIdle
}

// AbsoluteExpired reports whether the session has outlived its absolute
// bound, regardless of activity.
func (s *Session) AbsoluteExpired(now time.Time) bool {
	max := s.AbsoluteMax
	if max <= 0 {
		max = DefaultAbsoluteMax
	}
	return now.Sub(s.CreatedAt) > max
}

// Expired reports whether either lifetime bound has passed. Token validity
// is the manager's concern; a session is only valid when both this is false
// and its access token verifies.
func (s *Session) Expired(now time.Time) bool {
	return s.IdleExpired(now) || s.AbsoluteExpired(now)
}

// Touch advances the activity timestamp and folds in any newly observed
// environment. A changed IP or user agent marks the session suspicious and
// raises the accumulated churn score.
func (s *Session) Touch(now time.Time, ip, userAgent string) {
	s.LastActivityAt = now
	if ip != "" {
		if s.Security.IPAddress != "" && ip != s.Security.IPAddress {
			s.Security.IsSuspicious = true
			s.Security.RiskScore += riskIPChange
		}
		s.Security.IPAddress = ip
	}
	if userAgent != "" {
		if s.Security.UserAgent != "" && userAgent != s.Security.UserAgent {
			s.Security.IsSuspicious = true
			s.Security.RiskScore += riskUserAgentChange
		}
		s.Security.UserAgent = userAgent
	}
}

// RiskScore recomputes the session's risk from its observable signals:
// accumulated environment churn, excess login attempts, session age, and
// idle time. Capped at 1.0.
func (s *Session) RiskScore(now time.Time) float64 {
	score := s.Security.RiskScore
	if s.LoginAttempts > 3 {
		score += riskPerExtraAttempt * float64(s.LoginAttempts-3)
	}
	if now.Sub(s.CreatedAt) > oldSessionAge {
		score += riskOldSession
	}
	if now.Sub(s.LastActivityAt) > longIdleTime {
		score += riskLongIdle
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}

// HighRisk reports whether the risk score exceeds threshold. A threshold of
// zero or less falls back to the default.
func (s *Session) HighRisk(now time.Time, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultHighRiskThreshold
	}
	return s.RiskScore(now) > threshold
}
