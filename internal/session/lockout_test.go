package session

import (
	"testing"
	"time"
)

func TestLockout_ThresholdLocks(t *testing.T) {
	tr := newLockoutTracker(3, 15*time.Minute)

	for n := 1; n <= 2; n++ {
		if got := tr.Record("user-1", "1.1.1.1"); got != n {
			t.Fatalf("Record = %d, want %d", got, n)
		}
		if tr.Locked("user-1") {
			t.Fatalf("locked after %d attempts, threshold 3", n)
		}
	}
	tr.Record("user-1", "2.2.2.2")
	if !tr.Locked("user-1") {
		t.Error("not locked at threshold")
	}
	if tr.Locked("user-2") {
		t.Error("unrelated user locked")
	}
}

func TestLockout_WindowExpiry(t *testing.T) {
	tr := newLockoutTracker(3, 15*time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.nowF = func() time.Time { return base }

	for n := 0; n < 3; n++ {
		tr.Record("user-1", "1.1.1.1")
	}
	if !tr.Locked("user-1") {
		t.Fatal("not locked at threshold")
	}

	tr.nowF = func() time.Time { return base.Add(16 * time.Minute) }
	if tr.Locked("user-1") {
		t.Error("still locked after the window passed")
	}

	// A stale window restarts the count instead of extending it.
	if got := tr.Record("user-1", "1.1.1.1"); got != 1 {
		t.Errorf("Record after stale window = %d, want 1", got)
	}
}

func TestLockout_Reset(t *testing.T) {
	tr := newLockoutTracker(3, 15*time.Minute)
	for n := 0; n < 3; n++ {
		tr.Record("user-1", "1.1.1.1")
	}
	tr.Reset("user-1")
	if tr.Locked("user-1") {
		t.Error("locked after reset")
	}
	if got := tr.Record("user-1", "1.1.1.1"); got != 1 {
		t.Errorf("Record after reset = %d, want 1", got)
	}
}
