package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role assigned at registration
	RoleUser UserRole = "user"
	// RoleModerator can manage content but not accounts
	RoleModerator UserRole = "moderator"
	// RoleAdmin can manage accounts, roles, and security state
	RoleAdmin UserRole = "admin"
)

// UserStatus is the account lifecycle status
type UserStatus = string

const (
	// UserStatusActive is the default status, the account can authenticate
	UserStatusActive UserStatus = "active"
	// UserStatusInactive accounts are rejected at login until reactivated
	UserStatusInactive UserStatus = "inactive"
	// UserStatusSuspended accounts are rejected at login and have their
	// refresh tokens revoked when the status is applied
	UserStatusSuspended UserStatus = "suspended"
)

// User is the user model. Credential material (password hash, one time
// token digests, lockout counters) is never serialized to JSON.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID          uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name        string     `bun:"name,notnull" json:"name,omitempty"`
	Email       string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role        UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status      UserStatus `bun:"status,notnull" json:"status,omitempty"`
	Permissions []string   `bun:"permissions,array" json:"permissions,omitempty"`

	PasswordHash      string     `bun:"password_hash" json:"-"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"-"`

	EmailVerified            bool       `bun:"is_email_verified" json:"is_email_verified"`
	EmailVerificationDigest  string     `bun:"email_verification_digest" json:"-"`
	EmailVerificationExpires *time.Time `bun:"email_verification_expires,nullzero" json:"-"`
	PasswordResetDigest      string     `bun:"password_reset_digest" json:"-"`
	PasswordResetExpires     *time.Time `bun:"password_reset_expires,nullzero" json:"-"`

	FailedLoginAttempts int        `bun:"failed_login_attempts" json:"-"`
	AccountLocked       bool       `bun:"account_locked" json:"-"`
	AccountLockedUntil  *time.Time `bun:"account_locked_until,nullzero" json:"-"`

	LastLoginAt  *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	LastActiveAt *time.Time `bun:"last_active_at,nullzero" json:"last_active_at,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// EnsureStatus defaults the status for records predating the status column.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the account may authenticate at all.
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// Lockout materializes the persisted lockout counters as a machine state.
func (u *User) Lockout() LockoutState {
	return LockoutState{
		Attempts:    u.FailedLoginAttempts,
		Locked:      u.AccountLocked,
		LockedUntil: u.AccountLockedUntil,
	}
}

// ApplyLockout writes a lockout state back onto the record. Persisting it is
// the repository's job, see Users.SaveLockout.
func (u *User) ApplyLockout(state LockoutState) {
	u.FailedLoginAttempts = state.Attempts
	u.AccountLocked = state.Locked
	u.AccountLockedUntil = state.LockedUntil
}

// ChangedPasswordAfter reports whether the password changed after the given
// token issue time. Tokens minted before a password change are stale.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	// JWT iat has second resolution
	return u.PasswordChangedAt.Truncate(time.Second).After(issuedAt)
}

// NormalizeEmail lowercases and trims an email identifier. Emails are unique
// in their normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginOutcome is the recorded result of a login attempt
type LoginOutcome = string

const (
	// LoginOutcomeSuccess records a successful authentication
	LoginOutcomeSuccess LoginOutcome = "success"
	// LoginOutcomeFailed records a rejected authentication
	LoginOutcomeFailed LoginOutcome = "failed"
)

// FailureReason qualifies a failed login attempt
type FailureReason = string

const (
	// FailureInvalidCredentials covers unknown emails and wrong passwords alike
	FailureInvalidCredentials FailureReason = "invalid_credentials"
	// FailureAccountLocked is recorded while the lockout window is in effect
	FailureAccountLocked FailureReason = "account_locked"
	// FailureAccountInactive is recorded for inactive or suspended accounts
	FailureAccountInactive FailureReason = "account_inactive"
	// FailureUnverifiedEmail is recorded before the email has been verified
	FailureUnverifiedEmail FailureReason = "unverified_email"
)

// LoginActivity is an append-only audit record, one row per login attempt.
// UserID is nil when the presented email matched no account; the row is
// written anyway so the audit trail stays complete.
type LoginActivity struct {
	bun.BaseModel `bun:"table:login_activity,alias:la"`

	ID        uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID    *uuid.UUID    `bun:"user_id,nullzero" json:"user_id,omitempty"`
	IP        string        `bun:"ip" json:"ip,omitempty"`
	UserAgent string        `bun:"user_agent" json:"user_agent,omitempty"`
	Outcome   LoginOutcome  `bun:"outcome,notnull" json:"outcome,omitempty"`
	Reason    FailureReason `bun:"reason" json:"reason,omitempty"`
	CreatedAt *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
