package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClass distinguishes the two signed token kinds
type TokenClass = string

const (
	// TokenClassAccess is the short-lived bearer token
	TokenClassAccess TokenClass = "access"
	// TokenClassRefresh is the long-lived rotation token
	TokenClassRefresh TokenClass = "refresh"
)

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	UserRole UserRole `json:"role,omitempty"`
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Role returns the role carried by the token.
func (c *AccessClaims) Role() UserRole {
	return c.UserRole
}

// HasRole checks the token's role claim.
func (c *AccessClaims) HasRole(role UserRole) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the token's role meets the minimum required role.
func (c *AccessClaims) IsAtLeast(minRole UserRole) bool {
	return RoleAtLeast(c.UserRole, minRole)
}

// Expires returns the expiration time
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *AccessClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// RefreshClaims is the payload of a long-lived refresh token. It carries
// only the subject id; everything else is re-read from storage on refresh.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *RefreshClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// IssuedAt returns the issued at time
func (c *RefreshClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Expires returns the expiration time
func (c *RefreshClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}
