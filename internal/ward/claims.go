package ward

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims holds display-only fields decoded from an access token.
// The token is parsed without signature verification: the server is the
// only party that validates tokens, the client merely shows the user
// what it is holding.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// InspectToken decodes the subject and expiry claims of an access token
// for display. Never use the result for an authorization decision.
func InspectToken(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing token claims: %w", err)
	}

	out := &TokenClaims{}

	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}
