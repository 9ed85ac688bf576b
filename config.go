package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config carries every secret and tunable the package needs. It is built
// once at construction and passed in explicitly; nothing in this package
// reads the environment.
type Config struct {
	// AccessSigningKey signs short-lived access tokens
	AccessSigningKey string
	// RefreshSigningKey signs long-lived refresh tokens. It must differ
	// from AccessSigningKey so a leaked access token cannot be replayed
	// as a refresh token.
	RefreshSigningKey string
	Issuer            string
	Audience          []string

	// AccessTokenTTL defaults to 15 minutes
	AccessTokenTTL time.Duration
	// RefreshTokenTTL defaults to 7 days
	RefreshTokenTTL time.Duration
	// ResetTokenTTL defaults to 10 minutes
	ResetTokenTTL time.Duration
	// VerificationTokenTTL defaults to 24 hours
	VerificationTokenTTL time.Duration

	Lockout LockoutPolicy

	// MinPasswordScore is the zxcvbn-style score threshold, defaults to 3
	MinPasswordScore int
}

const (
	// DefaultAccessTokenTTL is the access token lifetime
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL is the refresh token lifetime
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	// DefaultResetTokenTTL is the password reset token lifetime
	DefaultResetTokenTTL = 10 * time.Minute
	// DefaultVerificationTokenTTL is the email verification token lifetime
	DefaultVerificationTokenTTL = 24 * time.Hour
	// DefaultMinPasswordScore is the minimum zxcvbn score for new passwords
	DefaultMinPasswordScore = 3
)

// Validate checks the configuration at construction time.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.AccessSigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.RefreshSigningKey, validation.Required, validation.Length(16, 0)),
	)
	if err != nil {
		return err
	}
	if c.AccessSigningKey == c.RefreshSigningKey {
		return validation.NewError(
			"config_shared_secret",
			"access and refresh tokens must use distinct signing secrets",
		)
	}
	return nil
}

// WithDefaults fills zero values with the package defaults.
func (c Config) WithDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = DefaultResetTokenTTL
	}
	if c.VerificationTokenTTL <= 0 {
		c.VerificationTokenTTL = DefaultVerificationTokenTTL
	}
	if c.Lockout.MaxAttempts <= 0 {
		c.Lockout.MaxAttempts = DefaultMaxLoginAttempts
	}
	if c.Lockout.Window <= 0 {
		c.Lockout.Window = DefaultLockoutWindow
	}
	if c.MinPasswordScore <= 0 {
		c.MinPasswordScore = DefaultMinPasswordScore
	}
	return c
}
