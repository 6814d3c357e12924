// Package identity owns the people who use the mess: students who present
// QR codes and admins who scan them.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role distinguishes what an identity may do.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleStudent || r == RoleAdmin }

var (
	ErrNotFound           = errors.New("identity: not found")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAuthRequired       = errors.New("identity: authentication required")
)

// Identity is a registered person. The password hash never leaves the package
// boundary in serialized form.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

// Store persists identities.
type Store interface {
	Create(ctx context.Context, id Identity) error
	Get(ctx context.Context, id string) (Identity, error)
	GetByEmail(ctx context.Context, email string) (Identity, error)
	// ListByRole returns identities with role, newest first.
	ListByRole(ctx context.Context, role Role) ([]Identity, error)
	FullName(ctx context.Context, id string) (string, error)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
