package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/labsession/pkg/session"
)

func TestGrantIsActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	tests := []struct {
		name  string
		grant session.Grant
		want  bool
	}{
		{"permanent", session.Grant{Code: "a"}, true},
		{"permanent ignores stale expiry", session.Grant{Code: "a", ExpiresAt: at(-time.Hour)}, true},
		{"temporary before expiry", session.Grant{Temporary: true, ExpiresAt: at(time.Millisecond)}, true},
		{"temporary exactly at expiry", session.Grant{Temporary: true, ExpiresAt: at(0)}, false},
		{"temporary after expiry", session.Grant{Temporary: true, ExpiresAt: at(-time.Millisecond)}, false},
		{"temporary without expiry", session.Grant{Temporary: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.grant.IsActive(now))
		})
	}
}

func TestHasCapability(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	p := &session.Principal{
		Permissions: []session.Grant{
			{ID: 10, Name: "Read results", Code: "results:read"},
			{ID: 11, Name: "Approve results", Code: "results:approve", Temporary: true, ExpiresAt: &future},
			{ID: 12, Name: "Edit billing", Code: "billing:write", Temporary: true, ExpiresAt: &past},
		},
		Roles: []session.RoleRef{{ID: "r1", Name: "pathologist"}},
	}

	require.True(t, session.HasCapability(p, session.ByID(10), now))
	require.True(t, session.HasCapability(p, session.ByCode("results:read"), now))
	require.True(t, session.HasCapability(p, session.ByName("Read results"), now))

	require.True(t, session.HasCapability(p, session.ByCode("results:approve"), now))
	require.False(t, session.HasCapability(p, session.ByCode("results:approve"), future))

	require.False(t, session.HasCapability(p, session.ByID(12), now), "expired temporary grant")
	require.False(t, session.HasCapability(p, session.ByCode("nope"), now))
	require.False(t, session.HasCapability(p, session.ByCode(""), now))

	unnumbered := &session.Principal{Permissions: []session.Grant{{Code: "results:read"}}}
	require.False(t, session.HasCapability(unnumbered, session.ByID(0), now), "unset id never matches")
	require.True(t, session.HasCapability(unnumbered, session.ByCode("results:read"), now))
	require.False(t, session.HasCapability(nil, session.ByID(10), now))
	require.False(t, session.HasCapability(p, nil, now))

	require.True(t, session.HasAllCapabilities(p, now, session.ByID(10), session.ByID(11)))
	require.False(t, session.HasAllCapabilities(p, now, session.ByID(10), session.ByID(12)))
	require.True(t, session.HasAllCapabilities(p, now))
	require.False(t, session.HasAllCapabilities(nil, now))

	require.True(t, session.HasAnyCapability(p, now, session.ByID(12), session.ByID(10)))
	require.False(t, session.HasAnyCapability(p, now, session.ByID(12)))
	require.False(t, session.HasAnyCapability(p, now))

	require.True(t, session.IsInRole(p, "pathologist"))
	require.False(t, session.IsInRole(p, "Pathologist"))
	require.False(t, session.IsInRole(nil, "pathologist"))

	active := session.ActiveGrants(p, now)
	require.Len(t, active, 2)
	require.True(t, active[1].ExpiresWithin(now, time.Minute))
	require.False(t, active[0].ExpiresWithin(now, time.Minute), "permanent grants never expire")
}

func TestCapabilityRefString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "id:7", session.ByID(7).String())
	require.Equal(t, "code:results:read", session.ByCode("results:read").String())
	require.Equal(t, "name:Read results", session.ByName("Read results").String())
}

func TestParseCapabilityRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want session.CapabilityRef
	}{
		{"id:7", session.ByID(7)},
		{"code:results:read", session.ByCode("results:read")},
		{"name:Approve results", session.ByName("Approve results")},
		{"results:approve", session.ByCode("results:approve")},
	}
	for _, tt := range tests {
		got, err := session.ParseCapabilityRef(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
		if tt.in != "results:approve" {
			require.Equal(t, tt.in, got.String(), "round trips")
		}
	}

	_, err := session.ParseCapabilityRef("id:seven")
	require.Error(t, err)
	_, err = session.ParseCapabilityRef("")
	require.Error(t, err)
}
