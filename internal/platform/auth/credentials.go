package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultRole is assigned to credential entries that do not name a role.
const DefaultRole = "viewer"

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password. Callers cannot tell the two apart.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Identity is what a successful login proves about the caller.
type Identity struct {
	Username    string
	DisplayName string
	Role        string
}

type credential struct {
	identity Identity
	digest   [sha256.Size]byte
}

// CredentialStore is the fixed, in-memory list of accounts allowed to sign
// in. It is read-only after construction and safe for concurrent use.
type CredentialStore struct {
	byUsername map[string]credential
	dummy      [sha256.Size]byte
}

// ParseCredentials parses "user:pass[:display[:role]]" entries separated by
// commas. Display name defaults to the username and role to DefaultRole.
// When a username repeats, the last entry wins. Blank entries are skipped;
// an entry without a username or password is an error.
func ParseCredentials(raw string) (*CredentialStore, error) {
	store := &CredentialStore{
		byUsername: make(map[string]credential),
		dummy:      sha256.Sum256([]byte("qct-dashboard-unknown-user")),
	}

	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 2 {
			return nil, fmt.Errorf("credential entry %d: expected user:password", i+1)
		}

		username := strings.TrimSpace(parts[0])
		password := parts[1]
		if username == "" || password == "" {
			return nil, fmt.Errorf("credential entry %d: username and password must not be empty", i+1)
		}

		id := Identity{Username: username, DisplayName: username, Role: DefaultRole}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			id.DisplayName = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			id.Role = strings.TrimSpace(parts[3])
		}

		store.byUsername[username] = credential{
			identity: id,
			digest:   sha256.Sum256([]byte(password)),
		}
	}

	return store, nil
}

// Len returns the number of distinct usernames.
func (s *CredentialStore) Len() int {
	return len(s.byUsername)
}

// Identities lists every configured account sorted by username. Passwords
// are never exposed.
func (s *CredentialStore) Identities() []Identity {
	out := make([]Identity, 0, len(s.byUsername))
	for _, cred := range s.byUsername {
		out = append(out, cred.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Verify checks a username/password pair. Passwords are compared as
// fixed-length SHA-256 digests with subtle.ConstantTimeCompare, and unknown
// usernames are compared against a dummy digest, so the time taken does not
// depend on how much of the password matched or on whether the user exists.
func (s *CredentialStore) Verify(username, password string) (Identity, error) {
	supplied := sha256.Sum256([]byte(password))

	cred, ok := s.byUsername[username]
	expected := s.dummy
	if ok {
		expected = cred.digest
	}

	match := subtle.ConstantTimeCompare(supplied[:], expected[:]) == 1
	if !ok || !match {
		return Identity{}, ErrInvalidCredentials
	}
	return cred.identity, nil
}
