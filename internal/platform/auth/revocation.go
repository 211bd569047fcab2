package auth

import (
	"sync"
	"time"
)

// RevocationList holds the ids (jti) of sessions ended by logout until their
// tokens would have expired anyway. It lives in process memory, so a
// restart or a second replica does not see earlier revocations.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

func NewRevocationList() *RevocationList {
	return &RevocationList{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke records jti until expiresAt. Expired entries are pruned on each
// call, which bounds the list by the number of sessions alive at once.
func (r *RevocationList) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, exp := range r.entries {
		if now.After(exp) {
			delete(r.entries, id)
		}
	}
	if now.After(expiresAt) {
		return
	}
	r.entries[jti] = expiresAt
}

// IsRevoked reports whether jti was revoked and has not yet expired.
func (r *RevocationList) IsRevoked(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exp, ok := r.entries[jti]
	return ok && !r.now().After(exp)
}

// Count returns the number of tracked revocations.
func (r *RevocationList) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
