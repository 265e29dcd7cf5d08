package session_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// memKV is an in-memory session.KeyValueStore.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// fakeAuth is a scriptable session.AuthClient. Unset funcs fail the call.
type fakeAuth struct {
	refreshCalls atomic.Int32
	revoked      chan string

	password func(username, password string) (*authsdk.TokenResponse, error)
	mfa      func(challenge authsdk.MFARequiredError, method, code string) (*authsdk.TokenResponse, error)
	refresh  func(ctx context.Context, refreshToken string) (*authsdk.TokenResponse, error)
	profile  func(accessToken string) (*authsdk.PrincipalResponse, error)
}

func newFakeAuth() *fakeAuth { return &fakeAuth{revoked: make(chan string, 8)} }

func (f *fakeAuth) PasswordGrant(_ context.Context, username, password string) (*authsdk.TokenResponse, error) {
	if f.password == nil {
		return nil, authsdk.ErrInvalidGrant
	}
	return f.password(username, password)
}

func (f *fakeAuth) MFAOTPGrant(_ context.Context, c authsdk.MFARequiredError, method, code string) (*authsdk.TokenResponse, error) {
	if f.mfa == nil {
		return nil, authsdk.ErrInvalidGrant
	}
	return f.mfa(c, method, code)
}

func (f *fakeAuth) RefreshGrant(ctx context.Context, refreshToken string) (*authsdk.TokenResponse, error) {
	f.refreshCalls.Add(1)
	if f.refresh == nil {
		return nil, authsdk.ErrInvalidGrant
	}
	return f.refresh(ctx, refreshToken)
}

func (f *fakeAuth) GetProfile(_ context.Context, accessToken string) (*authsdk.PrincipalResponse, error) {
	if f.profile == nil {
		return nil, authsdk.ErrServerError
	}
	return f.profile(accessToken)
}

func (f *fakeAuth) RevokeToken(_ context.Context, token string) error {
	select {
	case f.revoked <- token:
	default:
	}
	return nil
}

func bearer(access, refresh string) *authsdk.TokenResponse {
	return &authsdk.TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresIn: 300}
}

// labTech is the principal most tests sign in as.
func labTech(now time.Time) *authsdk.PrincipalResponse {
	soon := now.Add(time.Hour)
	return &authsdk.PrincipalResponse{
		ID:       "u-17",
		Username: "jdoe",
		Permissions: []authsdk.PermissionResponse{
			{ID: 1, Name: "Read results", Code: "results:read"},
			{ID: 2, Name: "Approve results", Code: "results:approve", Temporary: true, ExpiresAt: &soon},
		},
		Roles: []authsdk.RoleResponse{{ID: "r1", Name: "technician"}},
	}
}

// doerFunc adapts a function to session.HTTPDoer.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

var _ session.AuthClient = (*fakeAuth)(nil)
