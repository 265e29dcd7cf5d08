package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// PasswordGrant authenticates a user with the resource owner password grant.
// An MFA-enabled account yields a *MFARequiredError; wrong credentials yield
// an *OAuth2Error with code invalid_grant.
func (c *SDKClient) PasswordGrant(ctx context.Context, username, password string) (*TokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type": {"password"},
		"client_id":  {c.ClientID},
		"username":   {username},
		"password":   {password},
	})
}

// RefreshGrant requests new tokens using a refresh token.
func (c *SDKClient) RefreshGrant(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.ClientID},
		"refresh_token": {refreshToken},
	})
}

// MFAOTPGrant completes MFA authentication using a TOTP code.
func (c *SDKClient) MFAOTPGrant(ctx context.Context, challenge MFARequiredError, method, otpCode string) (*TokenResponse, error) {
	return c.requestToken(ctx, url.Values{
		"grant_type": {"mfa_otp"},
		"client_id":  {c.ClientID},
		"mfa_token":  {challenge.MFAToken},
		"method":     {method},
		"otp_code":   {otpCode},
	})
}

// RevokeToken revokes a refresh token. Revoking an unknown token succeeds.
func (c *SDKClient) RevokeToken(ctx context.Context, token string) error {
	data := url.Values{
		"token":     {token},
		"client_id": {c.ClientID},
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/oauth2/revoke",
		strings.NewReader(data.Encode()), formHeaders)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

var formHeaders = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

func (c *SDKClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/oauth2/token",
		strings.NewReader(data.Encode()), formHeaders)
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := decodeJSON(resp, &tokenResp, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokenResp, nil
}
