/*
Package authsdk is the HTTP client for the lab authentication service.

It covers the calls a session needs and nothing else:

	client := authsdk.NewSDKClient("https://auth.lab.example", "lab-frontend")

	tokens, err := client.PasswordGrant(ctx, username, password)
	var mfa *authsdk.MFARequiredError
	if errors.As(err, &mfa) {
		tokens, err = client.MFAOTPGrant(ctx, *mfa, "totp", code)
	}

	tokens, err = client.RefreshGrant(ctx, tokens.RefreshToken)
	profile, err := client.GetProfile(ctx, tokens.AccessToken)
	err = client.RevokeToken(ctx, tokens.RefreshToken)

# Errors

Every call returns one of:

  - an error wrapping ErrTransport when no response arrived;
  - *MFARequiredError for a 409 mfa_required challenge;
  - *OAuth2Error for any other non-success response;
  - an error wrapping ErrMalformedResponse when a success body can't be decoded.

The same OAuth2Error and MFARequiredError types are used by servers to
write those responses, so both sides agree on the wire format.

Token storage, refresh scheduling and replay live in package session; this
package is stateless.
*/
package authsdk
