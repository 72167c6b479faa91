// Package auth validates previously issued identity credentials at connection
// time. Token issuance lives in a collaborator service; this package only
// verifies signatures and extracts the {principalID, role} pair every room
// join requires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature, expired,
// malformed, or missing the identity claims.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the validated principal identity presented at connect time.
type Identity struct {
	PrincipalID string
	Role        string
}

// claims is the expected JWT claim set.
type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HMAC-signed identity tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates token and returns the identity it carries.
// The principal ID is the subject claim; the role rides in a custom claim.
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if c.Subject == "" || c.Role == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{PrincipalID: c.Subject, Role: c.Role}, nil
}

// Issue mints a token for a principal. Used by tests and the dev seeding
// path; production issuance belongs to the identity collaborator.
func (v *Verifier) Issue(principalID, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(v.secret)
}
