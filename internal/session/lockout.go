package session

import (
	"sync"
	"time"
)

// attemptInfo tracks failed logins for one user within the current window.
type attemptInfo struct {
	count       int
	lastAttempt time.Time
	ips         map[string]struct{}
}

// lockoutTracker implements brute-force lockout: threshold failures within a
// sliding window lock the account until the window has passed since the
// last failure. A stale window restarts the count.
type lockoutTracker struct {
	mu        sync.Mutex
	m         map[string]*attemptInfo
	threshold int
	window    time.Duration
	nowF      func() time.Time
}

func newLockoutTracker(threshold int, window time.Duration) *lockoutTracker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &lockoutTracker{
		m:         make(map[string]*attemptInfo),
		threshold: threshold,
		window:    window,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Record notes a failed login for userID from ip and returns the count in
// the current window.
func (t *lockoutTracker) Record(userID, ip string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowF()
	info := t.m[userID]
	if info == nil || now.Sub(info.lastAttempt) >= t.window {
		info = &attemptInfo{ips: make(map[string]struct{})}
		t.m[userID] = info
	}
	info.count++
	info.lastAttempt = now
	if ip != "" {
		info.ips[ip] = struct{}{}
	}
	return info.count
}

// Locked reports whether userID has reached the failure threshold within the
// window.
func (t *lockoutTracker) Locked(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.m[userID]
	if !ok || info.count < t.threshold {
		return false
	}
	return t.nowF().Sub(info.lastAttempt) < t.window
}

// Reset clears the failure state for userID, e.g. after a successful login.
func (t *lockoutTracker) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, userID)
}
