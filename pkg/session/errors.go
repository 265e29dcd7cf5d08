package session

import "errors"

var (
	// ErrAuthenticationFailed means the credentials were rejected. The user
	// can correct them and try again.
	ErrAuthenticationFailed = errors.New("session: authentication failed")

	// ErrMFARequired wraps an *authsdk.MFARequiredError carrying the challenge.
	ErrMFARequired = errors.New("session: multi-factor authentication required")

	// ErrTooManyAttempts means login was throttled, locally or by the server.
	ErrTooManyAttempts = errors.New("session: too many login attempts")

	// ErrSessionExpired means a request was still rejected as unauthorized
	// after the credential was refreshed, or refresh was not permitted.
	ErrSessionExpired = errors.New("session: authorization expired")

	// ErrAccessDenied means the principal lacks the capability. Refreshing
	// the credential would not help.
	ErrAccessDenied = errors.New("session: access denied")

	// ErrRefreshFailed means the credential could not be refreshed and the
	// session has been terminated.
	ErrRefreshFailed = errors.New("session: credential refresh failed")

	// ErrNoRefreshCredential means a refresh was needed but none is held.
	ErrNoRefreshCredential = errors.New("session: no refresh credential held")

	// ErrTransport means no response was received. The session is untouched.
	ErrTransport = errors.New("session: transport failure")

	// ErrNotAuthenticated means no session is active.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)
