// Package auth verifies the identity token issued by the account service.
// The hub never issues tokens in production; Sign exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSubject = errors.New("token has no sub claim")

// JWT wraps a signing secret for issuing/verifying tokens
type JWT struct{ secret []byte }

func New(secret string) *JWT { return &JWT{secret: []byte(secret)} }

// Verify checks an HS256 token and returns its sub claim.
func (j *JWT) Verify(tok string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrNoSubject
	}
	return sub, nil
}

// Sign creates a token for sub with the given TTL
func (j *JWT) Sign(sub string, ttl time.Duration) (string, error) {
	if sub == "" {
		return "", ErrNoSubject
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}
