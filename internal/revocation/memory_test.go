package revocation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_RevokeAndCheck(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("jti-1 not revoked")
	}

	revoked, err = s.IsRevoked(ctx, "jti-other")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Error("unknown jti reported revoked")
	}
}

func TestMemoryStore_ExpiredEntryNotStored(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Revoke(ctx, "jti-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Error("already-expired entry reported revoked")
	}
}

func TestMemoryStore_EntryLapsesAtExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowF = func() time.Time { return base }

	if err := s.Revoke(ctx, "jti-1", base.Add(time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("entry should be revoked before expiry")
	}

	s.nowF = func() time.Time { return base.Add(2 * time.Minute) }
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); revoked {
		t.Error("entry should lapse once the token itself has expired")
	}
}

func TestMemoryStore_EmptyJTI(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Revoke(context.Background(), "", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if revoked, _ := s.IsRevoked(context.Background(), ""); revoked {
		t.Error("empty jti reported revoked")
	}
}

func TestMemoryStore_RevokeAllForUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RevokeAllForUser(ctx, "user-1", cutoff); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	cases := []struct {
		name     string
		userID   string
		issuedAt time.Time
		want     bool
	}{
		{"issued before cutoff", "user-1", cutoff.Add(-time.Minute), true},
		{"issued at cutoff", "user-1", cutoff, false},
		{"issued after cutoff", "user-1", cutoff.Add(time.Minute), false},
		{"other user", "user-2", cutoff.Add(-time.Minute), false},
	}
	for _, tc := range cases {
		got, err := s.IsRevokedForUser(ctx, tc.userID, tc.issuedAt)
		if err != nil {
			t.Fatalf("%s: IsRevokedForUser: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: revoked = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMemoryStore_LaterTimestampWins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RevokeAllForUser(ctx, "user-1", cutoff.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	// Earlier timestamp must not roll the cutoff back.
	if err := s.RevokeAllForUser(ctx, "user-1", cutoff); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	revoked, err := s.IsRevokedForUser(ctx, "user-1", cutoff.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("IsRevokedForUser: %v", err)
	}
	if !revoked {
		t.Error("earlier RevokeAllForUser rolled the cutoff back")
	}
}
