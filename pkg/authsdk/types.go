package authsdk

import (
	"errors"
	"strings"
	"time"
)

// ErrorResponse is the RFC 6749 error body. Client code should use
// OAuth2Error instead.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749,
// for the password, refresh_token and mfa_otp grants.
type TokenResponse struct {
	AccessToken string `json:"access_token"`

	// RefreshToken is omitted when the server did not rotate it.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	Scope string `json:"scope,omitempty"`

	// Principal is included by servers that return the profile inline with
	// the password grant, saving a round trip to /v1/profile.
	Principal *PrincipalResponse `json:"principal,omitempty"`
}

// Validate rejects token responses the client cannot use.
func (t *TokenResponse) Validate() error {
	if t.AccessToken == "" {
		return errors.New("authsdk: token response has no access_token")
	}
	if !strings.EqualFold(t.TokenType, "Bearer") {
		return errors.New("authsdk: unsupported token_type " + t.TokenType)
	}
	return nil
}

// PrincipalResponse is the authenticated user as served by /v1/profile.
type PrincipalResponse struct {
	ID          string               `json:"id"`
	Username    string               `json:"username"`
	DisplayName string               `json:"display_name,omitempty"`
	Email       string               `json:"email,omitempty"`
	Attributes  map[string]string    `json:"attributes,omitempty"`
	Permissions []PermissionResponse `json:"permissions"`
	Roles       []RoleResponse       `json:"roles"`
}

// PermissionResponse is one capability grant. Temporary grants carry
// ExpiresAt; permanent ones never do.
type PermissionResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	Temporary bool       `json:"temporary"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RoleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
