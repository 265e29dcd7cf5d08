package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnverifiedExpiry reads the exp claim without checking the signature. It is
// meant for clients that hold a token issued to them and only need to know
// when to refresh it; it must never be used to make an access decision.
// The zero time is returned when the token is not a JWT or carries no exp.
func UnverifiedExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
