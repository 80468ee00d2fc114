// Package httpauth mints and validates the tenant-membership bearer JWT
// issued by the auth service (§1, §6), an HMAC-signed JWT via
// github.com/golang-jwt/jwt/v5. The host-client long-lived credential
// (§4.5) is not handled here: pkg/device mints and parses it with its own
// claim set.
package httpauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails signature, expiry, or
// claim-shape validation. Callers never get a more specific reason — per
// spec §7, unauthorized failures are opaque to the caller.
var ErrInvalidToken = errors.New("httpauth: invalid or expired token")

// Claims is the common claim set embedded in every bearer credential minted
// by Signer. WorkspaceID is the tenant; ClientID is set only when the caller
// of Mint passes one (the auth service passes none).
type Claims struct {
	jwt.RegisteredClaims
	WorkspaceID string `json:"workspace_id"`
	ClientID    string `json:"client_id,omitempty"`
}

// Signer mints and validates Claims-shaped JWTs against a single HMAC secret.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer from a raw HMAC secret. The secret is never
// logged and never echoed back in any response.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Mint issues a signed token for the given subject/tenant with the given TTL.
// clientID is empty for ordinary tenant-membership tokens.
func (s *Signer) Mint(subject, workspaceID, clientID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		WorkspaceID: workspaceID,
		ClientID:    clientID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token, rejecting expired or mis-signed
// tokens before returning its claims (spec §6: "Token validation must reject
// expired/invalid signatures before touching tenant-scoped state").
func (s *Signer) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.WorkspaceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
