package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt returns the expiry timestamp encoded in a JWT (if present).
//
// This function does not verify the JWT signature. It is only used for
// client-side control flow such as skipping a connect attempt that is
// guaranteed to be rejected. Server-side verification remains the source
// of truth for token validity.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether a token carries an exp claim in the past.
//
// Tokens that are empty, malformed, or missing an exp claim are treated as
// not expired: the connect attempt proceeds and the server decides. This
// keeps the check advisory and never blocks on anything.
func IsExpired(token string, now time.Time) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !exp.After(now)
}
