// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies the two token kinds used by the account
// lifecycle: signed session tokens (JWT) and random verification tokens.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired, or forged session tokens.
var ErrInvalidToken = errors.New("invalid token")

// verificationTokenLength is the number of random bytes in a verification token.
const verificationTokenLength = 32

// Claims are the session token claims. UserID is the only custom claim.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Issuer signs and verifies session tokens with a process-wide secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. Session tokens expire after ttl.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue creates a signed session token carrying the user ID.
func (i *Issuer) Issue(userID string) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: userID,
	})

	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the embedded user ID.
func (i *Issuer) Parse(tokenString string) (string, error) {
	claims := &Claims{}

	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

// NewVerificationToken generates a cryptographically random, single-use
// verification token. Uniqueness among unverified accounts is enforced by
// the credential store.
func NewVerificationToken() (string, error) {
	bytes := make([]byte, verificationTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating verification token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
