package session

import (
	"sync"
	"time"

	"comicguess-auth-core/backend/internal/session/domain"
)

// index is the in-memory session store, keyed both by session id and by
// user id. All compound read-modify-write sequences (notably the
// concurrency-cap check-and-evict on insert) run under one lock so
// concurrent logins for the same user cannot exceed the cap.
type index struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Session
	byUser map[string]map[string]*domain.Session
}

func newIndex() *index {
	return &index{
		byID:   make(map[string]*domain.Session),
		byUser: make(map[string]map[string]*domain.Session),
	}
}

// insertWithCap inserts s and, when the user is at the concurrent-session
// cap, evicts sessions starting from the oldest CreatedAt. Returns the
// evicted sessions so the caller can revoke their tokens outside the lock.
func (i *index) insertWithCap(s *domain.Session, cap int) []*domain.Session {
	i.mu.Lock()
	defer i.mu.Unlock()

	var evicted []*domain.Session
	if cap > 0 {
		for len(i.byUser[s.UserID]) >= cap {
			oldest := oldestOf(i.byUser[s.UserID])
			if oldest == nil {
				break
			}
			i.removeLocked(oldest)
			evicted = append(evicted, oldest)
		}
	}

	i.byID[s.ID] = s
	if i.byUser[s.UserID] == nil {
		i.byUser[s.UserID] = make(map[string]*domain.Session)
	}
	i.byUser[s.UserID][s.ID] = s
	return evicted
}

func oldestOf(sessions map[string]*domain.Session) *domain.Session {
	var oldest *domain.Session
	for _, s := range sessions {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	return oldest
}

func (i *index) removeLocked(s *domain.Session) {
	delete(i.byID, s.ID)
	if userSessions, ok := i.byUser[s.UserID]; ok {
		delete(userSessions, s.ID)
		if len(userSessions) == 0 {
			delete(i.byUser, s.UserID)
		}
	}
}

// remove deletes the session by id and returns a copy of it, or nil.
func (i *index) remove(sessionID string) *domain.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.byID[sessionID]
	if !ok {
		return nil
	}
	i.removeLocked(s)
	c := *s
	return &c
}

// removeUser deletes every session of userID and returns copies.
func (i *index) removeUser(userID string) []*domain.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	var removed []*domain.Session
	for _, s := range i.byUser[userID] {
		c := *s
		removed = append(removed, &c)
	}
	for _, s := range removed {
		i.removeLocked(i.byID[s.ID])
	}
	return removed
}

// get returns a copy of the session with the given id, or nil.
func (i *index) get(sessionID string) *domain.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.byID[sessionID]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

// current returns a copy of the user's most recently created session, or
// nil. With the concurrency cap this is the session a fresh login produced.
func (i *index) current(userID string) *domain.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var newest *domain.Session
	for _, s := range i.byUser[userID] {
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil
	}
	c := *newest
	return &c
}

// update applies fn to the stored session under the write lock and reports
// whether the session still exists.
func (i *index) update(sessionID string, fn func(*domain.Session)) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.byID[sessionID]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// snapshot returns copies of every stored session. Used by the cleanup sweep
// so expiry evaluation does not hold the lock.
func (i *index) snapshot() []*domain.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*domain.Session, 0, len(i.byID))
	for _, s := range i.byID {
		c := *s
		out = append(out, &c)
	}
	return out
}

// removeIfExpired deletes the session only if it still fails its lifetime
// bounds at now, and returns a copy when removed. Guards against a session
// refreshed between snapshot and removal.
func (i *index) removeIfExpired(sessionID string, now time.Time) *domain.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.byID[sessionID]
	if !ok || !s.Expired(now) {
		return nil
	}
	i.removeLocked(s)
	c := *s
	return &c
}

func (i *index) count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byID)
}
