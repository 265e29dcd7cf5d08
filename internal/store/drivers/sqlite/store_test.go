package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/labsession/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/labsession/pkg/session"
)

func newTestStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetPutDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "session.db"))

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "a", []byte("one")))
	require.NoError(t, s.Put(ctx, "a", []byte("two")))
	require.NoError(t, s.Put(ctx, "b", []byte("three")))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", string(v))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"), "deleting a missing key is not an error")
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Ping(ctx))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")
	s := newTestStore(t, path)
	require.NoError(t, s.ApplyMigrations())
}

// A session installed through one store survives reopening the file.
func TestSessionSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	first, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.ApplyMigrations())

	creds := session.NewCredentialStore(first, nil)
	installed := creds.Install(ctx, session.CredentialPair{Access: "at-0", Refresh: "rt-0"},
		session.Principal{ID: "u-17", Username: "jdoe", Roles: []session.RoleRef{{ID: "r1", Name: "technician"}}})
	require.NoError(t, first.Close())

	second := newTestStore(t, path)
	snap, ok := session.NewCredentialStore(second, nil).Load(ctx)
	require.True(t, ok)
	require.Equal(t, installed.SessionID, snap.SessionID)
	require.Equal(t, "rt-0", snap.Credentials.Refresh)
	require.Equal(t, "jdoe", snap.Principal.Username)
}
