package devauth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/httpx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

var errTooManyMFAAttempts = &authsdk.OAuth2Error{
	StatusCode:  http.StatusTooManyRequests,
	Code:        authsdk.ErrorCodeRateLimitExceeded,
	Description: "too many failed MFA attempts",
}

// TokenHandler serves POST /v1/oauth2/token for the password, refresh_token
// and mfa_otp grants. Accepts application/x-www-form-urlencoded.
type TokenHandler struct {
	Tokens *TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	ctx := r.Context()
	clientID := r.Form.Get("client_id")

	var (
		resp *authsdk.TokenResponse
		err  error
	)
	switch r.Form.Get("grant_type") {
	case "password":
		username, password := r.Form.Get("username"), r.Form.Get("password")
		if username == "" || password == "" {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
		resp, err = h.Tokens.PasswordGrant(ctx, clientID, username, password)
	case "refresh_token":
		rt := r.Form.Get("refresh_token")
		if rt == "" {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
		resp, err = h.Tokens.ExchangeRefreshToken(ctx, clientID, rt)
	case "mfa_otp":
		resp, err = h.Tokens.ExchangeMFAOTP(ctx, clientID,
			r.Form.Get("mfa_token"), r.Form.Get("method"), r.Form.Get("otp_code"))
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
		return
	}

	if err != nil {
		writeTokenError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	var mfa *authsdk.MFARequiredError
	switch {
	case errors.As(err, &mfa):
		mfa.WriteError(w)
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidGrant),
		errors.Is(err, ErrInvalidRefresh):
		authsdk.ErrInvalidGrant.WriteError(w)
	case errors.Is(err, ErrInvalidClient):
		authsdk.ErrInvalidClient.WriteError(w)
	case errors.Is(err, ErrTooManyAttempts):
		errTooManyMFAAttempts.WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("token endpoint failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// RevokeHandler serves POST /v1/oauth2/revoke. Per RFC 7009 the response is
// 200 whether or not the token was known.
type RevokeHandler struct {
	Tokens *TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	token := r.Form.Get("token")
	if token == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	h.Tokens.RevokeRefreshToken(r.Context(), token)
	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
}

// ProfileHandler serves GET /v1/profile from the live directory, so grant
// changes show up without a new token.
type ProfileHandler struct {
	Directory *Directory
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u, err := h.Directory.UserByID(httpx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteBearerError(w, "unknown subject")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.principal())
}

// ProbeHandler serves GET /v1/probe?capability=CODE, a stand-in protected
// resource: 403 insufficient_scope unless the access token carries CODE.
type ProbeHandler struct{}

func (ProbeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteBearerError(w, "missing bearer token")
		return
	}
	code := r.URL.Query().Get("capability")
	if code != "" && !claims.HasCapability(code) {
		httpx.WriteInsufficientScope(w, code)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"user_id":    claims.Subject,
		"session_id": claims.SID,
		"capability": code,
	})
}

// LivezHandler serves GET /livez.
func LivezHandler(version string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{Status: "ok", Version: version})
	})
}
