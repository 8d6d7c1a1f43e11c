package teamauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ApplicationClaims is what the client can read from the backend-issued JWT.
// The signature is the backend's business; the client never verifies it.
type ApplicationClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"uid,omitempty"`
	Email string `json:"email,omitempty"`
}

// UserID prefers the explicit uid claim over sub.
func (c *ApplicationClaims) UserID() string {
	if c == nil {
		return ""
	}
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// Expiry returns the expiry, or the zero time when the token has none.
func (c *ApplicationClaims) Expiry() time.Time {
	if c == nil || c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Expired reports whether the token is past its exp claim at now.
func (c *ApplicationClaims) Expired(now time.Time) bool {
	exp := c.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// DecodeApplicationToken reads the claims of an application token without
// verifying its signature.
func DecodeApplicationToken(token string) (*ApplicationClaims, error) {
	claims := &ApplicationClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, derive(ErrTokenMalformed, "", err, nil)
	}
	return claims, nil
}
