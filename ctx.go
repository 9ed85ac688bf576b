package auth

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AccessClaims in the given context
func WithClaimsContext(r context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AccessClaims from the standard context
func GetClaims(ctx context.Context) (*AccessClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*AccessClaims)
	return raw, ok
}

// Can reports whether the calling identity holds the permission. Admins
// pass every check, see User.HasPermission for the underlying rule.
func Can(ctx context.Context, permission string) bool {
	if claims, ok := GetClaims(ctx); ok {
		if claims.HasRole(RoleAdmin) {
			return true
		}
	}

	user, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return user.HasPermission(permission)
}

// IsAtLeast reports whether the calling identity meets the minimum role.
func IsAtLeast(ctx context.Context, minRole UserRole) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}
	return claims.IsAtLeast(minRole)
}
