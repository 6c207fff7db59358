package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const principalKey contextKey = "principal"

// Role values carried in tokens.
const (
	RoleAdmin     = "admin"
	RoleCanvasser = "canvasser"
)

// Principal is the authenticated caller: one user acting inside one tenant.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

// IsAdmin reports whether the caller may review and merge duplicates.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ContextWithPrincipal returns a new context that carries the authenticated caller.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the authenticated caller, if any. A principal
// without an organization is treated as absent.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.OrganizationID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// OrganizationIDFromContext retrieves the authenticated organization scope from the context, if any.
func OrganizationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return p.OrganizationID, true
}
