package session

import (
	"fmt"
	"testing"
	"time"

	"comicguess-auth-core/backend/internal/session/domain"
)

func testSession(id, userID string, createdAt time.Time) *domain.Session {
	return &domain.Session{
		ID:             id,
		UserID:         userID,
		CreatedAt:      createdAt,
		LastActivityAt: createdAt,
	}
}

func TestIndex_InsertWithCap(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for n := 0; n < 3; n++ {
		s := testSession(fmt.Sprintf("sess-%d", n), "user-1", base.Add(time.Duration(n)*time.Second))
		if evicted := idx.insertWithCap(s, 3); len(evicted) != 0 {
			t.Fatalf("insert %d evicted %d sessions", n, len(evicted))
		}
	}

	evicted := idx.insertWithCap(testSession("sess-3", "user-1", base.Add(3*time.Second)), 3)
	if len(evicted) != 1 {
		t.Fatalf("evicted %d sessions, want 1", len(evicted))
	}
	if evicted[0].ID != "sess-0" {
		t.Errorf("evicted %q, want the oldest sess-0", evicted[0].ID)
	}
	if idx.count() != 3 {
		t.Errorf("count = %d, want 3", idx.count())
	}
	if idx.get("sess-0") != nil {
		t.Error("evicted session still retrievable")
	}
}

func TestIndex_CapPerUser(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	idx.insertWithCap(testSession("a-1", "user-a", base), 1)
	if evicted := idx.insertWithCap(testSession("b-1", "user-b", base.Add(time.Second)), 1); len(evicted) != 0 {
		t.Errorf("another user's session was evicted")
	}
	if idx.count() != 2 {
		t.Errorf("count = %d, want 2", idx.count())
	}
}

func TestIndex_Current(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if idx.current("user-1") != nil {
		t.Error("current on empty index should be nil")
	}
	idx.insertWithCap(testSession("sess-1", "user-1", base), 5)
	idx.insertWithCap(testSession("sess-2", "user-1", base.Add(time.Minute)), 5)

	cur := idx.current("user-1")
	if cur == nil || cur.ID != "sess-2" {
		t.Fatalf("current = %+v, want sess-2", cur)
	}
}

func TestIndex_GetReturnsCopy(t *testing.T) {
	idx := newIndex()
	idx.insertWithCap(testSession("sess-1", "user-1", time.Now()), 5)

	s := idx.get("sess-1")
	s.AccessToken = "mutated"
	if idx.get("sess-1").AccessToken != "" {
		t.Error("mutating the returned copy leaked into the store")
	}
}

func TestIndex_Update(t *testing.T) {
	idx := newIndex()
	idx.insertWithCap(testSession("sess-1", "user-1", time.Now()), 5)

	ok := idx.update("sess-1", func(s *domain.Session) { s.AccessToken = "tok" })
	if !ok {
		t.Fatal("update reported missing session")
	}
	if idx.get("sess-1").AccessToken != "tok" {
		t.Error("update not applied")
	}
	if idx.update("missing", func(*domain.Session) {}) {
		t.Error("update reported success for a missing session")
	}
}

func TestIndex_RemoveUser(t *testing.T) {
	idx := newIndex()
	base := time.Now()
	idx.insertWithCap(testSession("a-1", "user-a", base), 5)
	idx.insertWithCap(testSession("a-2", "user-a", base.Add(time.Second)), 5)
	idx.insertWithCap(testSession("b-1", "user-b", base), 5)

	removed := idx.removeUser("user-a")
	if len(removed) != 2 {
		t.Fatalf("removed %d sessions, want 2", len(removed))
	}
	if idx.count() != 1 {
		t.Errorf("count = %d, want 1", idx.count())
	}
	if idx.get("b-1") == nil {
		t.Error("other user's session removed")
	}
}

func TestIndex_RemoveIfExpired(t *testing.T) {
	idx := newIndex()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSession("sess-1", "user-1", base)
	s.MaxIdle = time.Hour
	idx.insertWithCap(s, 5)

	if idx.removeIfExpired("sess-1", base.Add(30*time.Minute)) != nil {
		t.Error("live session removed")
	}
	if idx.get("sess-1") == nil {
		t.Fatal("session lost after no-op removeIfExpired")
	}

	// A refresh between snapshot and removal revives the session.
	idx.update("sess-1", func(live *domain.Session) {
		live.LastActivityAt = base.Add(2 * time.Hour)
	})
	if idx.removeIfExpired("sess-1", base.Add(2*time.Hour+30*time.Minute)) != nil {
		t.Error("revived session removed")
	}

	if gone := idx.removeIfExpired("sess-1", base.Add(10*time.Hour)); gone == nil {
		t.Error("expired session not removed")
	}
	if idx.count() != 0 {
		t.Errorf("count = %d, want 0", idx.count())
	}
}

func TestIndex_Snapshot(t *testing.T) {
	idx := newIndex()
	idx.insertWithCap(testSession("sess-1", "user-1", time.Now()), 5)
	idx.insertWithCap(testSession("sess-2", "user-2", time.Now()), 5)

	snap := idx.snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	snap[0].AccessToken = "mutated"
	for _, id := range []string{"sess-1", "sess-2"} {
		if idx.get(id).AccessToken != "" {
			t.Error("snapshot shares memory with the store")
		}
	}
}
