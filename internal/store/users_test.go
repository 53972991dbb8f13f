package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserStore(t *testing.T) (*UserStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := NewUserStore(path)
	require.NoError(t, err)
	return s, path
}

func TestUserStoreRegisterAndAuthenticate(t *testing.T) {
	s, _ := newTestUserStore(t)

	require.NoError(t, s.Register(RolePlayer, "p1", "secret"))

	assert.NoError(t, s.Authenticate(RolePlayer, "p1", "secret"))
	assert.ErrorIs(t, s.Authenticate(RolePlayer, "p1", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, s.Authenticate(RolePlayer, "nobody", "secret"), ErrInvalidCredentials)
}

func TestUserStoreDuplicateRegistration(t *testing.T) {
	s, _ := newTestUserStore(t)

	require.NoError(t, s.Register(RolePlayer, "p1", "a"))
	assert.ErrorIs(t, s.Register(RolePlayer, "p1", "b"), ErrUsernameTaken)
}

func TestUserStoreSameNameInBothRoles(t *testing.T) {
	// The same username in player and developer identifies two distinct accounts.
	s, _ := newTestUserStore(t)

	require.NoError(t, s.Register(RolePlayer, "alex", "ppw"))
	require.NoError(t, s.Register(RoleDeveloper, "alex", "dpw"))

	assert.NoError(t, s.Authenticate(RolePlayer, "alex", "ppw"))
	assert.NoError(t, s.Authenticate(RoleDeveloper, "alex", "dpw"))
	assert.ErrorIs(t, s.Authenticate(RolePlayer, "alex", "dpw"), ErrInvalidCredentials)
}

func TestUserStoreValidation(t *testing.T) {
	s, _ := newTestUserStore(t)

	assert.ErrorIs(t, s.Register("admin", "p1", "x"), ErrInvalidRole)
	assert.ErrorIs(t, s.Register(RolePlayer, "", "x"), ErrEmptyUsername)
	assert.ErrorIs(t, s.Authenticate("admin", "p1", "x"), ErrInvalidRole)
}

func TestUserStorePersistsAcrossReload(t *testing.T) {
	s, path := newTestUserStore(t)
	require.NoError(t, s.Register(RoleDeveloper, "dev1", "pw"))

	reloaded, err := NewUserStore(path)
	require.NoError(t, err)
	assert.NoError(t, reloaded.Authenticate(RoleDeveloper, "dev1", "pw"))
	assert.Equal(t, 1, reloaded.Count(RoleDeveloper))
	assert.Equal(t, 0, reloaded.Count(RolePlayer))
}

func TestUserStoreSnapshotIsAtomic(t *testing.T) {
	s, path := newTestUserStore(t)
	require.NoError(t, s.Register(RolePlayer, "p1", "pw"))

	// No stale temp file left behind after the rename.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
