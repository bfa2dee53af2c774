package handlers

import (
	"net/http"
	"strings"
)

// AuthCookie holds the session JWT for browser clients.
const AuthCookie = "auth_token"

// tokenFromRequest returns the JWT from the auth cookie or, failing that, a Bearer header.
func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AuthCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
