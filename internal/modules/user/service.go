package user

import "context"

// Service defines the interface for staff account business logic.
type Service interface {
	RegisterUser(ctx context.Context, req RegisterRequest) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// EnsureOwner creates the owner account unless one with email already exists.
	EnsureOwner(ctx context.Context, email, password string) (*User, error)
}
