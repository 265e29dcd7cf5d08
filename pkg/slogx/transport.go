package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/labsession/pkg/idx"
)

// Transport is the client-side counterpart of HTTPMiddleware: it stamps every
// outbound request with a request id and logs the exchange at debug level.
// The Authorization header is never logged.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqID := req.Header.Get(RequestIDHeader)
	if reqID == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		reqID = idx.New().String()
		req.Header.Set(RequestIDHeader, reqID)
	}

	start := time.Now()
	resp, err := t.Base.RoundTrip(req)
	attrs := []any{
		"req_id", reqID,
		"method", req.Method,
		"url", req.URL.Redacted(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		t.Logger.Debug("http_client_error", append(attrs, "err", err)...)
		return nil, err
	}

	t.Logger.Debug("http_client_request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
