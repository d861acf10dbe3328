package auth

import (
	"context"
	"errors"

	"github.com/dgrijalva/jwt-go"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Claims are the session token claims. Subject holds the staff user id.
type Claims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// Session is returned on a successful login.
type Session struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Service defines the interface for authentication-related business logic.
type Service interface {
	Login(ctx context.Context, email, password string) (*Session, error)
	Verify(token string) (*Claims, error)
}
