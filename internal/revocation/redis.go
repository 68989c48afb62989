package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	jtiKeyPrefix  = "revoked:"
	userKeyPrefix = "user_revoked:"
)

// RedisStore is a Store backed by a shared Redis instance, making
// revocations visible to every verifier in a multi-instance deployment.
// Per-token keys carry a TTL equal to the token's remaining lifetime;
// per-account keys hold the revocation timestamp as Unix seconds.
type RedisStore struct {
	client *redis.Client
	nowF   func() time.Time
}

// NewRedisStore connects to the Redis at url (redis:// or rediss://) and
// verifies connectivity with a bounded ping. Connection and per-command
// timeouts are short so revocation checks stay within the verification
// deadline.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		nowF:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Revoke stores the jti with a TTL covering the token's remaining lifetime.
func (s *RedisStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.nowF())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, jtiKeyPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether a revocation entry exists for jti.
func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, jtiKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// RevokeAllForUser records the account revocation timestamp for userID.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return nil
	}
	return s.client.Set(ctx, userKeyPrefix+userID, strconv.FormatInt(at.Unix(), 10), 0).Err()
}

// IsRevokedForUser reports whether a token issued at issuedAt precedes the
// account's stored revocation timestamp.
func (s *RedisStore) IsRevokedForUser(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	v, err := s.client.Get(ctx, userKeyPrefix+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, fmt.Errorf("malformed revocation timestamp for user %s: %w", userID, err)
	}
	return issuedAt.Unix() < ts, nil
}

// Ping checks Redis connectivity, for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
