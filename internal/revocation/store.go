// Package revocation answers "is this token or account revoked" behind a
// pluggable store. A single-instance deployment can use the in-memory store;
// multi-instance deployments need the Redis store so revocations are visible
// to every verifier.
package revocation

import (
	"context"
	"time"
)

// Store records invalidated credentials. Per-token entries self-expire at
// the token's own expiry so the store never grows without bound; per-account
// revocation is a single timestamp regardless of how many tokens the user
// has issued.
type Store interface {
	// Revoke marks the token with the given jti revoked until expiresAt.
	// Tokens already past expiresAt need no entry.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked reports whether jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// RevokeAllForUser marks every token of userID issued before at as
	// revoked.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	// IsRevokedForUser reports whether a token of userID issued at issuedAt
	// falls before the account's revocation timestamp.
	IsRevokedForUser(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}
