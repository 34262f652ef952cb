// FILE: loglayer/src/internal/admin/auth.go
package admin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authenticator validates HS256 bearer tokens
type authenticator struct {
	parser  *jwt.Parser
	keyFunc jwt.Keyfunc
}

func newAuthenticator(secret string) *authenticator {
	key := []byte(secret)
	return &authenticator{
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithLeeway(5*time.Second),
			jwt.WithExpirationRequired(),
		),
		keyFunc: func(token *jwt.Token) (any, error) {
			return key, nil
		},
	}
}

func (a *authenticator) authenticate(authHeader string) error {
	if authHeader == "" {
		return errors.New("missing authorization header")
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return errors.New("authorization header is not a bearer token")
	}

	claims := jwt.MapClaims{}
	parsed, err := a.parser.ParseWithClaims(token, claims, a.keyFunc)
	if err != nil {
		return fmt.Errorf("JWT validation failed: %w", err)
	}
	if !parsed.Valid {
		return errors.New("invalid JWT token")
	}
	return nil
}

// MintToken signs an HS256 token for subject valid for ttl
func MintToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		return "", errors.New("token lifetime must be positive")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "loglayer",
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
