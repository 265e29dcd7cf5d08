package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/labsession/pkg/session"
)

func testPrincipal() session.Principal {
	until := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return session.Principal{
		ID:       "u-17",
		Username: "jdoe",
		Permissions: []session.Grant{
			{ID: 1, Code: "results:read"},
			{ID: 2, Code: "results:approve", Temporary: true, ExpiresAt: &until},
		},
		Roles: []session.RoleRef{{ID: "r1", Name: "technician"}},
	}
}

func TestCredentialStoreInstallAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kv := newMemKV()
	store := session.NewCredentialStore(kv, nil)
	require.False(t, store.IsAuthenticated())

	snap := store.Install(ctx, session.CredentialPair{Access: "at-0", Refresh: "rt-0"}, testPrincipal())
	require.False(t, snap.SessionID.IsZero())
	require.True(t, store.IsAuthenticated())
	require.True(t, kv.has(session.KeyCredentials))
	require.True(t, kv.has(session.KeyPrincipal))

	prev, ok := store.Clear(ctx)
	require.True(t, ok)
	require.Equal(t, snap.SessionID, prev.SessionID)

	_, hasCreds := store.Credentials()
	_, hasPrincipal := store.Principal()
	require.False(t, hasCreds)
	require.False(t, hasPrincipal)
	require.False(t, kv.has(session.KeyCredentials))
	require.False(t, kv.has(session.KeyPrincipal))

	_, ok = store.Clear(ctx)
	require.False(t, ok, "clearing twice is a no-op")
}

func TestCredentialStorePrincipalIsCopied(t *testing.T) {
	t.Parallel()

	store := session.NewCredentialStore(nil, nil)
	store.Install(context.Background(), session.CredentialPair{Access: "at-0"}, testPrincipal())

	p, ok := store.Principal()
	require.True(t, ok)
	p.Permissions[0].Code = "tampered"
	*p.Permissions[1].ExpiresAt = time.Time{}
	p.Roles = nil

	again, _ := store.Principal()
	require.Equal(t, testPrincipal(), again)
}

func TestCredentialStoreRotate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := session.NewCredentialStore(newMemKV(), nil)
	snap := store.Install(ctx, session.CredentialPair{Access: "at-0", Refresh: "rt-0"}, testPrincipal())

	t.Run("keeps refresh credential when not rotated", func(t *testing.T) {
		creds, err := store.Rotate(ctx, snap.SessionID, session.CredentialPair{Access: "at-1"})
		require.NoError(t, err)
		require.Equal(t, "rt-0", creds.Refresh)

		held, _ := store.Credentials()
		require.Equal(t, session.CredentialPair{Access: "at-1", Refresh: "rt-0"}, held)
	})

	t.Run("replaces both when rotated", func(t *testing.T) {
		_, err := store.Rotate(ctx, snap.SessionID, session.CredentialPair{Access: "at-2", Refresh: "rt-2"})
		require.NoError(t, err)
		held, _ := store.Credentials()
		require.Equal(t, "rt-2", held.Refresh)
	})

	t.Run("never revives an ended session", func(t *testing.T) {
		store.Clear(ctx)
		_, err := store.Rotate(ctx, snap.SessionID, session.CredentialPair{Access: "at-3", Refresh: "rt-3"})
		require.ErrorIs(t, err, session.ErrNotAuthenticated)
		require.False(t, store.IsAuthenticated())
	})
}

func TestCredentialStoreRotateWrongSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := session.NewCredentialStore(nil, nil)
	first := store.Install(ctx, session.CredentialPair{Access: "at-a"}, testPrincipal())
	store.Install(ctx, session.CredentialPair{Access: "at-b"}, testPrincipal())

	_, err := store.Rotate(ctx, first.SessionID, session.CredentialPair{Access: "at-late"})
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	held, _ := store.Credentials()
	require.Equal(t, "at-b", held.Access)

	_, ok := store.ClearSession(ctx, first.SessionID)
	require.False(t, ok)
	require.True(t, store.IsAuthenticated())
}

func TestCredentialStoreLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		kv := newMemKV()
		expires := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
		orig := session.NewCredentialStore(kv, nil).Install(ctx,
			session.CredentialPair{Access: "at-0", Refresh: "rt-0", ExpiresAt: expires}, testPrincipal())

		restored := session.NewCredentialStore(kv, nil)
		snap, ok := restored.Load(ctx)
		require.True(t, ok)
		require.Equal(t, orig.SessionID, snap.SessionID)
		require.True(t, snap.Credentials.ExpiresAt.Equal(expires))
		require.Equal(t, "rt-0", snap.Credentials.Refresh)
		require.Equal(t, "jdoe", snap.Principal.Username)
		require.True(t, restored.IsAuthenticated())
	})

	t.Run("nothing persisted", func(t *testing.T) {
		_, ok := session.NewCredentialStore(newMemKV(), nil).Load(ctx)
		require.False(t, ok)
	})

	t.Run("half persisted is discarded", func(t *testing.T) {
		kv := newMemKV()
		require.NoError(t, kv.Put(ctx, session.KeyCredentials, []byte(`{"session_id":"01JABCDEFGHJKMNPQRSTVWXYZ0","access_token":"at"}`)))

		store := session.NewCredentialStore(kv, nil)
		_, ok := store.Load(ctx)
		require.False(t, ok)
		require.False(t, store.IsAuthenticated())
		require.False(t, kv.has(session.KeyCredentials))
	})

	t.Run("corrupt principal is discarded", func(t *testing.T) {
		kv := newMemKV()
		session.NewCredentialStore(kv, nil).Install(ctx, session.CredentialPair{Access: "at"}, testPrincipal())
		require.NoError(t, kv.Put(ctx, session.KeyPrincipal, []byte("{not json")))

		store := session.NewCredentialStore(kv, nil)
		_, ok := store.Load(ctx)
		require.False(t, ok)
		require.False(t, kv.has(session.KeyCredentials))
		require.False(t, kv.has(session.KeyPrincipal))
	})
}
