// ABOUTME: Bearer credential inspection for the chat client
// ABOUTME: Extracts subject and expiry from the session JWT without verifying it

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential errors
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrMissingClaim      = errors.New("missing required claim")
)

// Credential is the bearer token handed to the client at login. The client
// cannot verify the signature (the secret is server-side); it only inspects
// claims to learn the session user and to detect expiry before connecting.
// An expired credential forces a full re-login flow, never a silent retry.
type Credential struct {
	token       string
	userID      string
	displayName string
	expiresAt   time.Time
}

// ParseCredential inspects a bearer token and extracts the session identity.
// The "sub" claim is required; "name" and "exp" are optional.
func ParseCredential(token string) (*Credential, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidCredential
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	cred := &Credential{token: token, userID: sub, displayName: sub}
	if name, ok := claims["name"].(string); ok && name != "" {
		cred.displayName = name
	}
	if exp, ok := claims["exp"].(float64); ok {
		cred.expiresAt = time.Unix(int64(exp), 0)
	}
	return cred, nil
}

// Token returns the raw bearer token for Authorization headers and the
// channel handshake.
func (c *Credential) Token() string { return c.token }

// UserID returns the session user's identifier from the "sub" claim.
func (c *Credential) UserID() string { return c.userID }

// DisplayName returns the "name" claim, falling back to the user ID.
func (c *Credential) DisplayName() string { return c.displayName }

// IsCredentialError reports whether err stems from a rejected or expired
// credential, the cases that force a re-login instead of a retry.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrExpiredCredential)
}

// Valid returns ErrExpiredCredential if the token's expiry has passed.
func (c *Credential) Valid(now time.Time) error {
	if !c.expiresAt.IsZero() && !now.Before(c.expiresAt) {
		return ErrExpiredCredential
	}
	return nil
}
