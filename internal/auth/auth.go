// Package auth signs and verifies the identity tokens that carry a username
// and role into the document channel. Establishing who a user is happens
// elsewhere; this package only vouches for an identity already established.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"collab-dashboard/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

const DefaultTTL = 7 * 24 * time.Hour

type Authenticator struct {
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func New(jwtSecret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (a *Authenticator) IssueToken(id rbac.Identity) (string, error) {
	if strings.TrimSpace(id.User) == "" {
		return "", fmt.Errorf("issue token: username is required")
	}
	now := a.now()
	claims := jwt.MapClaims{
		"username": id.User,
		"role":     string(id.Role),
		"iat":      now.Unix(),
		"exp":      now.Add(a.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Authenticator) ValidateToken(tokenString string) (rbac.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return rbac.Identity{}, ErrExpiredToken
		}
		return rbac.Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return rbac.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return rbac.Identity{}, ErrInvalidToken
	}
	username, ok := claims["username"].(string)
	if !ok || strings.TrimSpace(username) == "" {
		return rbac.Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)

	return rbac.Identity{User: username, Role: rbac.Normalize(role)}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
