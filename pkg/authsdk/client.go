package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the lab authentication service on behalf of a single
// OAuth2 public client. It holds no credentials itself; callers pass tokens
// in and get tokens back.
type SDKClient struct {
	BaseURL    string
	ClientID   string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with a 10 second request timeout. Pass a
// custom transport (for example slogx.NewTransport) through opts.
func NewSDKClient(baseURL, clientID string, opts ...Option) *SDKClient {
	c := &SDKClient{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		ClientID: clientID,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option customises an SDKClient.
type Option func(*SDKClient)

// WithTransport sets the round tripper used for every call.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *SDKClient) { c.HTTPClient.Transport = rt }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *SDKClient) { c.HTTPClient.Timeout = d }
}
