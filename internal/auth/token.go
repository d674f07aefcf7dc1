// SPDX-License-Identifier: MIT

// Package auth implements request authentication for the API: static bearer
// tokens with constant-time comparison, or HS256 JWT verification.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExtractToken retrieves the API credential from the request.
// 1. Authorization: Bearer <token>
// 2. Header: X-API-Token
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if t := r.Header.Get("X-API-Token"); t != "" {
		return t
	}
	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time
// comparison. Empty tokens are always treated as unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
