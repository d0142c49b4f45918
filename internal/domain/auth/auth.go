// Package auth models the mocked token scheme. The core trusts the role
// carried by a validated token; there are no passwords or sessions. Tokens
// are stored as HMAC-SHA256 hashes so a leaked table does not leak usable
// credentials.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the caller's role claim.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// ErrTokenNotFound is returned when no token matches the presented hash.
var ErrTokenNotFound = errors.New("token not found")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// Repository resolves token hashes to identities.
type Repository interface {
	FindByTokenHash(ctx context.Context, hash string) (*Identity, error)
}

type identityKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
