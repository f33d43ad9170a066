package sessions

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenClaims is the subset of access-token claims the client cares about.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseTokenClaims extracts claims without verifying the signature. The
// client holds no key material; claims are used for display and logging
// only, never for authorization decisions.
func ParseTokenClaims(rawToken string) (*TokenClaims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[ParseTokenClaims] ParseUnverified")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("[ParseTokenClaims] error extracting claims")
	}

	tc := &TokenClaims{}
	tc.Subject, _ = claims["sub"].(string)
	if iat, ok := claims["iat"].(float64); ok {
		tc.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		tc.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return tc, nil
}

// Expired reports whether the token expiry has passed. Tokens without an exp
// claim never report expired.
func (tc *TokenClaims) Expired(now time.Time) bool {
	return !tc.ExpiresAt.IsZero() && now.After(tc.ExpiresAt)
}
