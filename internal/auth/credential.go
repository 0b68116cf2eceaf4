// ABOUTME: Session credential type with expiry metadata derived from JWT claims
// ABOUTME: The backend verifies tokens; we only inspect claims to know when to re-login

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential errors
var (
	// ErrAuthenticationFailed is returned when no valid credential exists
	// and the interactive refresh was cancelled, timed out, or errored.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrLoginCancelled is returned by authenticators when the user
	// dismisses the interactive login surface.
	ErrLoginCancelled = errors.New("login cancelled")
)

// Credential is an opaque session token plus issuance/expiry metadata.
// Owned exclusively by the Store.
type Credential struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Valid reports whether the credential can still be presented at now,
// applying skew as a safety margin before the recorded expiry.
// A credential without expiry metadata is treated as valid until the
// backend rejects it.
func (c *Credential) Valid(now time.Time, skew time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(c.ExpiresAt.Add(-skew))
}

// fillTimesFromToken populates missing issuance/expiry metadata from the
// token's JWT claims when the token parses as a JWT. The signature is not
// checked here; the backend is the verifier.
func (c *Credential) fillTimesFromToken() {
	if !c.IssuedAt.IsZero() && !c.ExpiresAt.IsZero() {
		return
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.Token, claims); err != nil {
		return
	}

	if c.IssuedAt.IsZero() {
		if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
			c.IssuedAt = iat.Time
		}
	}
	if c.ExpiresAt.IsZero() {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			c.ExpiresAt = exp.Time
		}
	}
}
