package security

import (
	"sync"
	"time"
)

// Family tracks the lineage of refresh tokens produced by successive
// rotations of one login. The index is derived, recoverable bookkeeping:
// the signed token remains the source of truth for validity.
type Family struct {
	ID            string
	UserID        string
	CreatedAt     time.Time
	LastUsedAt    time.Time
	RotationCount int
}

// FamilyIndex is an in-memory index of refresh-token families keyed by
// family id. Safe for concurrent use.
type FamilyIndex struct {
	mu   sync.RWMutex
	m    map[string]*Family
	nowF func() time.Time
}

// NewFamilyIndex returns an empty FamilyIndex.
func NewFamilyIndex() *FamilyIndex {
	return &FamilyIndex{
		m:    make(map[string]*Family),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Ensure records the family if it is not yet known. RotationCount starts at
// zero for a new family; an existing entry is left untouched.
func (i *FamilyIndex) Ensure(familyID, userID string) {
	if familyID == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.m[familyID]; ok {
		return
	}
	now := i.nowF()
	i.m[familyID] = &Family{
		ID:         familyID,
		UserID:     userID,
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

// Touch advances LastUsedAt for a known family. Unknown families are ignored.
func (i *FamilyIndex) Touch(familyID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if f, ok := i.m[familyID]; ok {
		f.LastUsedAt = i.nowF()
	}
}

// Rotate increments the rotation count for a known family and returns the
// new count. Returns 0 for unknown families.
func (i *FamilyIndex) Rotate(familyID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	f, ok := i.m[familyID]
	if !ok {
		return 0
	}
	f.RotationCount++
	f.LastUsedAt = i.nowF()
	return f.RotationCount
}

// Get returns a copy of the family entry and true if known.
func (i *FamilyIndex) Get(familyID string) (Family, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	f, ok := i.m[familyID]
	if !ok {
		return Family{}, false
	}
	return *f, true
}

// Drop removes a single family, e.g. on logout.
func (i *FamilyIndex) Drop(familyID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.m, familyID)
}

// DropUser removes every family belonging to userID, e.g. on account-wide
// token revocation.
func (i *FamilyIndex) DropUser(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, f := range i.m {
		if f.UserID == userID {
			delete(i.m, id)
		}
	}
}
