package session

import (
	"net/http"

	"github.com/aussiebroadwan/labsession/pkg/authsdk"
)

// Outcome is how the session treats a response.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeExpired: the credential is no longer accepted; refreshing may help.
	OutcomeExpired
	// OutcomeDenied: the credential is fine but lacks the capability.
	OutcomeDenied
	// OutcomeFailure: any other non-success, passed through untouched.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExpired:
		return "expired"
	case OutcomeDenied:
		return "denied"
	default:
		return "failure"
	}
}

// Classify maps a response onto an Outcome. 401 means expired and 403 means
// denied, except where the RFC 6750 challenge says otherwise: a 401 carrying
// insufficient_scope is a denial, a 403 carrying invalid_token is an expiry.
func Classify(resp *http.Response) Outcome {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusUnauthorized:
		if authsdk.BearerErrorCode(resp.Header) == authsdk.ErrorCodeInsufficientScope {
			return OutcomeDenied
		}
		return OutcomeExpired
	case code == http.StatusForbidden:
		if authsdk.BearerErrorCode(resp.Header) == authsdk.ErrorCodeInvalidToken {
			return OutcomeExpired
		}
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
