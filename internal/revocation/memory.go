package revocation

import (
	"context"
	"sync"
	"time"
)

// sweepEvery bounds how often Revoke scans for expired jti entries.
const sweepEvery = 256

// MemoryStore is an in-process Store. Best-effort: revocations are lost on
// restart and invisible to other instances. Unlike a pure jti set, it keeps
// a per-user revocation timestamp, so account-wide revocation works the same
// way here as on the shared backend.
type MemoryStore struct {
	mu      sync.RWMutex
	jtis    map[string]time.Time // jti -> token expiry
	users   map[string]time.Time // userID -> revoked-at
	inserts int
	nowF    func() time.Time
}

// NewMemoryStore returns an empty in-memory revocation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jtis:  make(map[string]time.Time),
		users: make(map[string]time.Time),
		nowF:  func() time.Time { return time.Now().UTC() },
	}
}

// Revoke records jti until expiresAt. Entries already past expiry are not
// stored.
func (s *MemoryStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	if !expiresAt.After(now) {
		return nil
	}
	s.jtis[jti] = expiresAt
	s.inserts++
	if s.inserts%sweepEvery == 0 {
		for id, exp := range s.jtis {
			if !exp.After(now) {
				delete(s.jtis, id)
			}
		}
	}
	return nil
}

// IsRevoked reports whether jti is revoked. Expired entries are dropped on
// read.
func (s *MemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	exp, ok := s.jtis[jti]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !exp.After(s.nowF()) {
		s.mu.Lock()
		delete(s.jtis, jti)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// RevokeAllForUser sets the account revocation timestamp for userID. A later
// timestamp always wins.
func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[userID]; !ok || at.After(prev) {
		s.users[userID] = at
	}
	return nil
}

// IsRevokedForUser reports whether a token issued at issuedAt precedes the
// account's revocation timestamp.
func (s *MemoryStore) IsRevokedForUser(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	at, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return issuedAt.Before(at), nil
}
