package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Roles a user account can hold. The same username may exist in both roles;
// they are two distinct accounts.
const (
	RolePlayer    = "player"
	RoleDeveloper = "developer"
)

var (
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmptyUsername      = errors.New("empty username")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidRole reports whether role is one of the known account roles.
func ValidRole(role string) bool {
	return role == RolePlayer || role == RoleDeveloper
}

// UserStore holds registered accounts keyed by role then username, backed by
// a JSON snapshot. Credentials are stored and compared as-is; hashing is out
// of scope for this hub.
type UserStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]map[string]string // role → username → password
}

// NewUserStore loads the user snapshot at path, creating an empty store when
// the file does not exist yet.
func NewUserStore(path string) (*UserStore, error) {
	s := &UserStore{
		path: path,
		users: map[string]map[string]string{
			RolePlayer:    {},
			RoleDeveloper: {},
		},
	}

	loaded := map[string]map[string]string{}
	found, err := readSnapshot(path, &loaded)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	if found {
		for role, accounts := range loaded {
			if ValidRole(role) {
				s.users[role] = accounts
			}
		}
	}

	return s, nil
}

// Register creates a new account. Fails when the username already exists
// within the chosen role.
func (s *UserStore) Register(role, username, password string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	if username == "" {
		return ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[role][username]; exists {
		return ErrUsernameTaken
	}
	s.users[role][username] = password
	s.persistLocked()
	return nil
}

// Authenticate compares credentials literally against the role-specific map.
func (s *UserStore) Authenticate(role, username, password string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[role][username]
	if !ok || stored != password {
		return ErrInvalidCredentials
	}
	return nil
}

// Count returns the number of accounts registered under role.
func (s *UserStore) Count(role string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[role])
}

// persistLocked snapshots the store. A write failure is logged; in-memory
// state stays authoritative until the next successful snapshot.
func (s *UserStore) persistLocked() {
	if err := writeSnapshot(s.path, s.users); err != nil {
		slog.Error("persisting users snapshot", "error", err)
	}
}
