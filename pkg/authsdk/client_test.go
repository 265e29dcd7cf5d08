package authsdk_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *authsdk.SDKClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return authsdk.NewSDKClient(srv.URL+"/", "lab-frontend")
}

func TestPasswordGrant(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))
		require.Equal(t, "lab-frontend", r.PostForm.Get("client_id"))

		if r.PostForm.Get("password") != "s3cret" {
			authsdk.ErrInvalidGrant.WriteError(w)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authsdk.TokenResponse{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			TokenType:    "Bearer",
			ExpiresIn:    300,
			Principal:    &authsdk.PrincipalResponse{ID: "u1", Username: "jdoe"},
		})
	})

	tokens, err := client.PasswordGrant(context.Background(), "jdoe", "s3cret")
	require.NoError(t, err)
	require.NoError(t, tokens.Validate())
	require.Equal(t, "at-1", tokens.AccessToken)
	require.Equal(t, "jdoe", tokens.Principal.Username)

	_, err = client.PasswordGrant(context.Background(), "jdoe", "wrong")
	var oauthErr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, authsdk.ErrorCodeInvalidGrant, oauthErr.Code)
	require.Equal(t, http.StatusBadRequest, oauthErr.StatusCode)
}

func TestPasswordGrantMFAChallenge(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		(&authsdk.MFARequiredError{MFAToken: "mfa-123", Methods: []string{"totp"}}).WriteError(w)
	})

	_, err := client.PasswordGrant(context.Background(), "jdoe", "s3cret")
	var mfa *authsdk.MFARequiredError
	require.ErrorAs(t, err, &mfa)
	require.Equal(t, "mfa-123", mfa.MFAToken)
	require.Equal(t, []string{"totp"}, mfa.Methods)
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := authsdk.NewSDKClient(srv.URL, "lab-frontend")
	_, err := client.RefreshGrant(context.Background(), "rt-1")
	require.ErrorIs(t, err, authsdk.ErrTransport)
}

func TestMalformedSuccessBody(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := client.RefreshGrant(context.Background(), "rt-1")
	require.ErrorIs(t, err, authsdk.ErrMalformedResponse)
}

func TestGetProfile(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","username":"jdoe","permissions":[
			{"id":7,"name":"Approve results","code":"results:approve","temporary":true,"expires_at":"2026-03-01T10:00:00Z"}
		],"roles":[{"id":"r1","name":"pathologist"}]}`))
	})

	p, err := client.GetProfile(context.Background(), "at-1")
	require.NoError(t, err)
	require.Len(t, p.Permissions, 1)
	require.True(t, p.Permissions[0].Temporary)
	require.NotNil(t, p.Permissions[0].ExpiresAt)
	require.Equal(t, "pathologist", p.Roles[0].Name)

	_, err = client.GetProfile(context.Background(), "stale")
	var oauthErr *authsdk.OAuth2Error
	require.True(t, errors.As(err, &oauthErr))
	require.Equal(t, authsdk.ErrorCodeInvalidToken, oauthErr.Code)
}

func TestRevokeToken(t *testing.T) {
	t.Parallel()

	revoked := make(chan string, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/oauth2/revoke", r.URL.Path)
		require.NoError(t, r.ParseForm())
		revoked <- r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.RevokeToken(context.Background(), "rt-9"))
	require.Equal(t, "rt-9", <-revoked)
}

func TestBearerErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{`Bearer error="invalid_token", error_description="token expired"`, "invalid_token"},
		{`Bearer realm="lab", error="insufficient_scope", scope="results:approve"`, "insufficient_scope"},
		{`Basic realm="lab"`, ""},
		{``, ""},
	}

	for _, tt := range tests {
		h := http.Header{}
		if tt.header != "" {
			h.Set("WWW-Authenticate", tt.header)
		}
		require.Equal(t, tt.want, authsdk.BearerErrorCode(h), tt.header)
	}
}

func TestTokenResponseValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, (&authsdk.TokenResponse{TokenType: "Bearer"}).Validate())
	require.Error(t, (&authsdk.TokenResponse{AccessToken: "x", TokenType: "mac"}).Validate())
	require.NoError(t, (&authsdk.TokenResponse{AccessToken: "x", TokenType: "bearer"}).Validate())
}
