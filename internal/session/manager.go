// Package session orchestrates session lifecycle: creation under a per-user
// concurrency cap, token refresh with risk gating, invalidation, brute-force
// lockout bookkeeping, and the periodic expiry sweep.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"comicguess-auth-core/backend/internal/security"
	"comicguess-auth-core/backend/internal/session/domain"
	"comicguess-auth-core/backend/internal/telemetry"
	userdomain "comicguess-auth-core/backend/internal/user/domain"
)

// Sentinel errors for session operations. Token-level failure detail is
// deliberately collapsed into ErrInvalidRefresh; the kind is logged, not
// surfaced.
var (
	ErrAccountLocked   = errors.New("account locked")
	ErrUnknownUser     = errors.New("unknown user")
	ErrInvalidRefresh  = errors.New("invalid refresh token")
	ErrHighRiskBlocked = errors.New("session blocked: high risk")
)

// sweepBatchSize bounds how many sessions a cleanup pass removes per lock
// acquisition.
const sweepBatchSize = 32

// UserDirectory is the narrow user-store interface the manager needs: it
// materializes username and email at session-creation time only. The core
// never re-validates credentials against it per request.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Config holds the session policy knobs. Zero values fall back to the
// documented defaults.
type Config struct {
	// MaxSessionsPerUser caps concurrent sessions per user; at capacity the
	// oldest session is evicted. Default 5.
	MaxSessionsPerUser int
	// MaxIdle invalidates sessions with no activity for this long. Default 24h.
	MaxIdle time.Duration
	// AbsoluteMax invalidates sessions older than this regardless of
	// activity. Default 168h.
	AbsoluteMax time.Duration
	// HighRiskThreshold blocks refresh when the risk score exceeds it.
	// Default 0.7.
	HighRiskThreshold float64
	// LockoutThreshold and LockoutWindow drive brute-force lockout.
	// Defaults 5 and 15m.
	LockoutThreshold int
	LockoutWindow    time.Duration
	// CleanupInterval is the background sweep period. Default 1h.
	CleanupInterval time.Duration
	// VerifyTimeout bounds token verification including any revocation
	// round-trip. Default 1s.
	VerifyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = 5
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = domain.DefaultMaxIdle
	}
	if c.AbsoluteMax <= 0 {
		c.AbsoluteMax = domain.DefaultAbsoluteMax
	}
	if c.HighRiskThreshold <= 0 {
		c.HighRiskThreshold = domain.DefaultHighRiskThreshold
	}
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = 15 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = time.Second
	}
	return c
}

// SecuritySnapshot is the read-only security view of a session.
type SecuritySnapshot struct {
	SessionID         string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	IsSuspicious      bool
	RiskScore         float64
	HighRisk          bool
	CreatedAt         time.Time
	LastActivityAt    time.Time
}

// Manager owns the set of live sessions. Construct one per process and
// inject it; there is no package-level instance.
type Manager struct {
	tokens  *security.TokenProvider
	users   UserDirectory
	emitter telemetry.EventEmitter
	metrics *telemetry.Metrics
	cfg     Config
	idx     *index
	lockout *lockoutTracker
	nowF    func() time.Time
}

// NewManager returns a Manager using tokens for credential work and users to
// materialize display fields at creation time. emitter and metrics may be
// nil; users may be nil in tests, in which case sessions carry the bare
// user id.
func NewManager(tokens *security.TokenProvider, users UserDirectory, emitter telemetry.EventEmitter, metrics *telemetry.Metrics, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		tokens:  tokens,
		users:   users,
		emitter: emitter,
		metrics: metrics,
		cfg:     cfg,
		idx:     newIndex(),
		lockout: newLockoutTracker(cfg.LockoutThreshold, cfg.LockoutWindow),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession authenticates nothing itself: the caller has already
// verified credentials. It enforces lockout and the concurrency cap, mints
// a token pair, and registers the session. Failed-login counters reset on
// success.
func (m *Manager) CreateSession(ctx context.Context, userID, ip, userAgent, deviceFingerprint string) (*domain.Session, error) {
	if m.lockout.Locked(userID) {
		return nil, ErrAccountLocked
	}

	user := &userdomain.User{ID: userID}
	if m.users != nil {
		u, err := m.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUnknownUser
		}
		user = u
	}

	pair, err := m.tokens.CreateTokenPair(userID, security.ExtraClaims{
		Username: user.Username,
		Email:    user.Email,
	})
	if err != nil {
		return nil, err
	}
	m.metrics.TokenIssued(ctx, string(security.TokenTypeAccess))
	m.metrics.TokenIssued(ctx, string(security.TokenTypeRefresh))

	now := m.nowF()
	s := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		Username:         user.Username,
		Email:            user.Email,
		CreatedAt:        now,
		LastActivityAt:   now,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		RefreshTokenHash: security.HashRefreshToken(pair.RefreshToken),
		TokenFamily:      pair.Family,
		Security: domain.SecurityInfo{
			IPAddress:         orUnknown(ip),
			UserAgent:         orUnknown(userAgent),
			DeviceFingerprint: deviceFingerprint,
		},
		MaxIdle:     m.cfg.MaxIdle,
		AbsoluteMax: m.cfg.AbsoluteMax,
	}

	evicted := m.idx.insertWithCap(s, m.cfg.MaxSessionsPerUser)
	for _, old := range evicted {
		m.revokeSessionTokens(ctx, old)
		m.metrics.SessionEvicted(ctx)
		telemetry.EmitAsync(m.emitter, &telemetry.Event{
			Type:      telemetry.EventSessionEvicted,
			UserID:    old.UserID,
			SessionID: old.ID,
			Detail:    "concurrent session limit",
		})
	}

	m.lockout.Reset(userID)
	m.metrics.SessionCreated(ctx)
	telemetry.EmitAsync(m.emitter, &telemetry.Event{
		Type:      telemetry.EventLogin,
		UserID:    userID,
		SessionID: s.ID,
		IPAddress: ip,
	})

	c := *s
	return &c, nil
}

// GetSession returns the user's live session, touching its activity. A
// session failing the validity invariant (lifetime bounds or access-token
// verification) is invalidated and nil is returned.
func (m *Manager) GetSession(ctx context.Context, userID string) *domain.Session {
	s := m.idx.current(userID)
	if s == nil {
		return nil
	}
	if !m.sessionValid(ctx, s) {
		m.invalidate(ctx, s)
		return nil
	}
	now := m.nowF()
	m.idx.update(s.ID, func(live *domain.Session) {
		live.Touch(now, "", "")
	})
	return m.idx.get(s.ID)
}

// GetSessionByToken resolves the session for an access token. Beyond token
// verification it confirms the token is the session's current access token,
// so a stale token from before a rotation cannot reach a session.
func (m *Manager) GetSessionByToken(ctx context.Context, accessToken string) *domain.Session {
	verifyCtx, cancel := context.WithTimeout(ctx, m.cfg.VerifyTimeout)
	defer cancel()
	userID, err := m.tokens.GetUserID(verifyCtx, accessToken)
	if err != nil {
		m.noteVerifyFailure(ctx, err)
		return nil
	}
	s := m.GetSession(ctx, userID)
	if s == nil || s.AccessToken != accessToken {
		return nil
	}
	return s
}

// RefreshSession exchanges the session's refresh token for fresh
// credentials. High-risk sessions are invalidated and blocked; a refresh
// token that does not match the session's current one is rejected without
// touching the token provider.
func (m *Manager) RefreshSession(ctx context.Context, userID, refreshToken, ip, userAgent string) (*domain.Session, error) {
	s := m.idx.current(userID)
	if s == nil {
		return nil, ErrInvalidRefresh
	}
	if !security.RefreshTokenHashEqual(refreshToken, s.RefreshTokenHash) {
		log.Printf("session: refresh token mismatch for user %s", userID)
		return nil, ErrInvalidRefresh
	}

	now := m.nowF()
	if s.HighRisk(now, m.cfg.HighRiskThreshold) {
		log.Printf("session: blocking refresh for high-risk session %s (user %s)", s.ID, userID)
		telemetry.EmitAsync(m.emitter, &telemetry.Event{
			Type:      telemetry.EventHighRiskBlocked,
			UserID:    userID,
			SessionID: s.ID,
			IPAddress: ip,
		})
		m.invalidate(ctx, s)
		return nil, ErrHighRiskBlocked
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.cfg.VerifyTimeout)
	defer cancel()
	res, err := m.tokens.RefreshAccessToken(refreshCtx, refreshToken, true)
	if err != nil {
		m.noteVerifyFailure(ctx, err)
		m.invalidate(ctx, s)
		return nil, ErrInvalidRefresh
	}
	m.metrics.TokenIssued(ctx, string(security.TokenTypeAccess))

	ok := m.idx.update(s.ID, func(live *domain.Session) {
		live.AccessToken = res.AccessToken
		if res.Rotated {
			live.RefreshToken = res.RefreshToken
			live.RefreshTokenHash = security.HashRefreshToken(res.RefreshToken)
		}
		live.Touch(now, ip, userAgent)
	})
	if !ok {
		return nil, ErrInvalidRefresh
	}
	if res.Rotated {
		m.metrics.TokenIssued(ctx, string(security.TokenTypeRefresh))
		telemetry.EmitAsync(m.emitter, &telemetry.Event{
			Type:      telemetry.EventTokenRotation,
			UserID:    userID,
			SessionID: s.ID,
			IPAddress: ip,
		})
	}
	return m.idx.get(s.ID), nil
}

// InvalidateSession ends the user's current session, revoking its tokens.
// Returns false when the user has no session.
func (m *Manager) InvalidateSession(ctx context.Context, userID string) bool {
	s := m.idx.current(userID)
	if s == nil {
		return false
	}
	m.invalidate(ctx, s)
	return true
}

// InvalidateSessionByID ends the session with the given id.
func (m *Manager) InvalidateSessionByID(ctx context.Context, sessionID string) bool {
	s := m.idx.get(sessionID)
	if s == nil {
		return false
	}
	m.invalidate(ctx, s)
	return true
}

// InvalidateAllSessions ends every session of userID via account-wide token
// revocation. Tokens issued after this call are unaffected.
func (m *Manager) InvalidateAllSessions(ctx context.Context, userID string) bool {
	if err := m.tokens.RevokeAllForUser(ctx, userID); err != nil {
		log.Printf("session: account-wide revocation for user %s: %v", userID, err)
	}
	removed := m.idx.removeUser(userID)
	for _, s := range removed {
		telemetry.EmitAsync(m.emitter, &telemetry.Event{
			Type:      telemetry.EventLogout,
			UserID:    userID,
			SessionID: s.ID,
			Detail:    "all sessions invalidated",
		})
	}
	return len(removed) > 0
}

// UpdateActivity touches the session and folds in newly observed client
// environment. Returns false when the session no longer exists.
func (m *Manager) UpdateActivity(sessionID, ip, userAgent string) bool {
	now := m.nowF()
	return m.idx.update(sessionID, func(live *domain.Session) {
		live.Touch(now, ip, userAgent)
	})
}

// RecordFailedLogin notes a failed login attempt for lockout accounting.
func (m *Manager) RecordFailedLogin(userID, ip string) {
	count := m.lockout.Record(userID, ip)
	log.Printf("session: failed login for user %s from %s (attempt %d)", userID, orUnknown(ip), count)
	if count == m.cfg.LockoutThreshold {
		telemetry.EmitAsync(m.emitter, &telemetry.Event{
			Type:      telemetry.EventAccountLocked,
			UserID:    userID,
			IPAddress: ip,
		})
	}
}

// IsAccountLocked reports whether userID is currently locked out.
func (m *Manager) IsAccountLocked(userID string) bool {
	return m.lockout.Locked(userID)
}

// SessionSecurityInfo returns the security view of the user's live session,
// or nil.
func (m *Manager) SessionSecurityInfo(ctx context.Context, userID string) *SecuritySnapshot {
	s := m.GetSession(ctx, userID)
	if s == nil {
		return nil
	}
	now := m.nowF()
	return &SecuritySnapshot{
		SessionID:         s.ID,
		IPAddress:         s.Security.IPAddress,
		UserAgent:         s.Security.UserAgent,
		DeviceFingerprint: s.Security.DeviceFingerprint,
		IsSuspicious:      s.Security.IsSuspicious,
		RiskScore:         s.RiskScore(now),
		HighRisk:          s.HighRisk(now, m.cfg.HighRiskThreshold),
		CreatedAt:         s.CreatedAt,
		LastActivityAt:    s.LastActivityAt,
	}
}

// ActiveSessionCount returns the number of stored sessions, expired or not.
func (m *Manager) ActiveSessionCount() int {
	return m.idx.count()
}

// IsUserLoggedIn reports whether userID has a live session.
func (m *Manager) IsUserLoggedIn(ctx context.Context, userID string) bool {
	return m.GetSession(ctx, userID) != nil
}

// CleanupExpiredSessions sweeps sessions failing the validity invariant and
// returns how many were removed. It snapshots candidates first and removes
// them in small batches so the store lock is never held for the whole sweep.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) int {
	now := m.nowF()
	var expired, tokenDead []*domain.Session
	for _, s := range m.idx.snapshot() {
		if s.Expired(now) {
			expired = append(expired, s)
			continue
		}
		verifyCtx, cancel := context.WithTimeout(ctx, m.cfg.VerifyTimeout)
		_, err := m.tokens.Verify(verifyCtx, s.AccessToken, security.TokenTypeAccess, true)
		cancel()
		if err != nil {
			tokenDead = append(tokenDead, s)
		}
	}

	removed := 0
	for start := 0; start < len(expired); start += sweepBatchSize {
		end := start + sweepBatchSize
		if end > len(expired) {
			end = len(expired)
		}
		for _, s := range expired[start:end] {
			// Re-checked under the lock: a refresh may have revived it.
			if gone := m.idx.removeIfExpired(s.ID, m.nowF()); gone != nil {
				m.revokeSessionTokens(ctx, gone)
				removed++
			}
		}
	}
	for _, s := range tokenDead {
		// Token failures are terminal; no re-check needed.
		if gone := m.idx.remove(s.ID); gone != nil {
			removed++
		}
	}

	if removed > 0 {
		log.Printf("session: cleaned up %d expired sessions", removed)
		m.metrics.SessionsSwept(ctx, int64(removed))
	}
	return removed
}

// RunCleanup sweeps on the configured interval until ctx is done. Run it in
// its own goroutine.
func (m *Manager) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpiredSessions(ctx)
		}
	}
}

// sessionValid implements the session invariant: both lifetime bounds hold
// and the access token verifies (including revocation checks).
func (m *Manager) sessionValid(ctx context.Context, s *domain.Session) bool {
	if s.Expired(m.nowF()) {
		return false
	}
	verifyCtx, cancel := context.WithTimeout(ctx, m.cfg.VerifyTimeout)
	defer cancel()
	_, err := m.tokens.Verify(verifyCtx, s.AccessToken, security.TokenTypeAccess, true)
	if err != nil {
		m.noteVerifyFailure(ctx, err)
		return false
	}
	return true
}

// invalidate revokes the session's tokens and removes it from the store.
func (m *Manager) invalidate(ctx context.Context, s *domain.Session) {
	m.revokeSessionTokens(ctx, s)
	m.idx.remove(s.ID)
	telemetry.EmitAsync(m.emitter, &telemetry.Event{
		Type:      telemetry.EventLogout,
		UserID:    s.UserID,
		SessionID: s.ID,
	})
}

func (m *Manager) revokeSessionTokens(ctx context.Context, s *domain.Session) {
	if err := m.tokens.Logout(ctx, s.AccessToken, s.RefreshToken); err != nil {
		log.Printf("session: revoking tokens for session %s: %v", s.ID, err)
	}
}

// noteVerifyFailure logs the internal failure kind and counts it. The kind
// is never surfaced to callers.
func (m *Manager) noteVerifyFailure(ctx context.Context, err error) {
	kind := security.KindOf(err)
	if kind == "" {
		kind = "error"
	}
	log.Printf("session: token verification failed: %s", kind)
	m.metrics.VerifyFailed(ctx, string(kind))
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
