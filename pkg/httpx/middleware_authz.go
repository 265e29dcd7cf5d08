package httpx

import (
	"net/http"
	"strings"
)

// RequireAllCapabilities the caller's token must carry every listed capability.
func RequireAllCapabilities(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteBearerError(w, "missing bearer token")
				return
			}
			for _, c := range required {
				if !claims.HasCapability(c) {
					WriteInsufficientScope(w, required...)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyCapability the caller must have at least one listed capability.
func RequireAnyCapability(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteBearerError(w, "missing bearer token")
				return
			}
			for _, c := range required {
				if claims.HasCapability(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteInsufficientScope(w, required...)
		})
	}
}

// WriteInsufficientScope writes a 403 with an RFC 6750 insufficient_scope
// challenge naming the capabilities that were required.
func WriteInsufficientScope(w http.ResponseWriter, required ...string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	WriteJSON(w, http.StatusForbidden, map[string]string{
		"error":             "insufficient_scope",
		"error_description": "missing capability: " + strings.Join(required, " "),
	})
}
