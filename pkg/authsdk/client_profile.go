package authsdk

import (
	"context"
	"net/http"
)

// GetProfile fetches the principal the access token was issued to.
func (c *SDKClient) GetProfile(ctx context.Context, accessToken string) (*PrincipalResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/profile", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	if err != nil {
		return nil, err
	}

	var p PrincipalResponse
	if err := decodeJSON(resp, &p, http.StatusOK); err != nil {
		return nil, err
	}
	return &p, nil
}
