// Package access adapts the external authentication collaborator. Identity is
// established upstream; this service trusts the X-User-Id and X-User-Role
// headers it injects and carries the result through the request context.
package access

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) Admin() bool {
	return i.Role == RoleAdmin
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
