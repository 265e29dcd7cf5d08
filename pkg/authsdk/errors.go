package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/labsession/pkg/httpx"
)

var (
	// ErrTransport means no HTTP response was received at all.
	ErrTransport = errors.New("authsdk: transport failure")

	// ErrMalformedResponse means a success response could not be decoded.
	ErrMalformedResponse = errors.New("authsdk: malformed response")
)

// OAuth2 error codes per RFC 6749 and RFC 6750.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeServerError          = "server_error"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeInsufficientScope    = "insufficient_scope"
	ErrorCodeMFARequired          = "mfa_required"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// OAuth2Error represents a standard OAuth2 error response per RFC 6749.
// The server writes it, the client parses it back.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this OAuth2Error to an HTTP response writer.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

var (
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidClient = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "invalid client",
	}

	// ErrInvalidGrant covers wrong passwords and unknown, expired, revoked
	// or replayed refresh tokens alike.
	ErrInvalidGrant = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidGrant,
		Description: "invalid credentials",
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrMethodNotAllowed = &OAuth2Error{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	ErrInvalidContentType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}
)

// MFARequiredError is returned with HTTP 409 Conflict when the password was
// right but the account needs a second factor before tokens are issued.
type MFARequiredError struct {
	MFAToken string   `json:"mfa_token"`
	Methods  []string `json:"mfa_methods"`
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("MFA required: available methods=%v", e.Methods)
}

// WriteError writes the MFA challenge as a 409 Conflict in OAuth2 error format.
func (e *MFARequiredError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusConflict, map[string]any{
		"error":             ErrorCodeMFARequired,
		"error_description": "Multi-factor authentication is required to complete this request",
		"mfa_token":         e.MFAToken,
		"mfa_methods":       e.Methods,
	})
}

// ParseErrorResponse turns a non-2xx response into a typed error: an MFA
// challenge, an OAuth2 error from the body, an OAuth2 error from the
// WWW-Authenticate challenge, or a generic error from the status code.
func ParseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusConflict {
		var mfaResp struct {
			Error      string   `json:"error"`
			MFAToken   string   `json:"mfa_token"`
			MFAMethods []string `json:"mfa_methods"`
		}
		if err := json.Unmarshal(body, &mfaResp); err == nil &&
			mfaResp.Error == ErrorCodeMFARequired && mfaResp.MFAToken != "" {
			return &MFARequiredError{MFAToken: mfaResp.MFAToken, Methods: mfaResp.MFAMethods}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	if code := BearerErrorCode(resp.Header); code != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        code,
			Description: http.StatusText(resp.StatusCode),
		}
	}

	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

// BearerErrorCode returns the error="..." attribute of an RFC 6750 Bearer
// challenge in the WWW-Authenticate header, or "" if there is none.
func BearerErrorCode(h http.Header) string {
	for _, challenge := range h.Values("WWW-Authenticate") {
		scheme, params, ok := strings.Cut(strings.TrimSpace(challenge), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			continue
		}
		for param := range strings.SplitSeq(params, ",") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.EqualFold(key, "error") {
				return strings.Trim(value, `"`)
			}
		}
	}
	return ""
}
