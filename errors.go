package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials is returned for unknown emails and wrong
	// passwords alike, the caller cannot tell which factor failed
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeAccountLocked is returned during the lockout window
	TextCodeAccountLocked = "ACCOUNT_LOCKED"
	// TextCodeAccountInactive is returned for inactive or suspended accounts
	TextCodeAccountInactive = "ACCOUNT_INACTIVE"
	// TextCodeEmailNotVerified is returned before the email is verified
	TextCodeEmailNotVerified = "EMAIL_NOT_VERIFIED"
	// TextCodeDuplicateEmail is returned when registering an existing email
	TextCodeDuplicateEmail = "DUPLICATE_EMAIL"
	// TextCodeWeakPassword is returned when the password policy rejects a password
	TextCodeWeakPassword = "WEAK_PASSWORD"
	// TextCodePasswordMismatch is returned when confirmation does not match
	TextCodePasswordMismatch = "PASSWORD_MISMATCH"
	// TextCodeInvalidRefreshToken covers malformed, expired, revoked, and
	// replayed refresh tokens uniformly
	TextCodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	// TextCodeInvalidOneTimeToken covers unknown, consumed, and expired
	// reset/verification tokens uniformly
	TextCodeInvalidOneTimeToken = "INVALID_OR_EXPIRED_TOKEN"
	// TextCodeTokenExpired flags an expired access token
	TextCodeTokenExpired = "TOKEN_EXPIRED"
	// TextCodeTokenMalformed flags a structurally invalid token
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
)

// ErrInvalidCredentials is deliberately uninformative, it does not reveal
// whether the email exists.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while the lockout window is in effect. The
// minutes remaining are attached as metadata, see LockedError.
var ErrAccountLocked = goerrors.New("account is locked due to too many failed login attempts", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive is returned for inactive and suspended accounts.
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified is returned when the email has not been verified yet.
var ErrEmailNotVerified = goerrors.New("email address has not been verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateEmail is returned when the normalized email already exists.
var ErrDuplicateEmail = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when the password strength policy rejects
// the candidate password.
var ErrWeakPassword = goerrors.New("password is too weak", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = goerrors.New("passwords do not match", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrWrongCurrentPassword is returned by the password update flow when the
// presented current password does not match.
var ErrWrongCurrentPassword = goerrors.New("current password is incorrect", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRefreshToken is the uniform rejection for any structurally
// invalid, expired, revoked, or replayed refresh token. Replay of a rotated
// token is indistinguishable from a stolen token and gets the same answer.
var ErrInvalidRefreshToken = goerrors.New("invalid refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidOneTimeToken is the uniform rejection for unknown, consumed,
// or expired reset/verification tokens.
var ErrInvalidOneTimeToken = goerrors.New("token is invalid or has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOneTimeToken).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired flags an access token past its expiry.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed flags a token that failed structural verification.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotFound is returned when a referenced user does not exist.
var ErrNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrForbidden is returned when the actor's role does not allow the operation.
var ErrForbidden = goerrors.New("you do not have permission to perform this action", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString rejects empty credential input before hashing.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal result of a failed bcrypt
// comparison. Callers translate it into ErrInvalidCredentials before it
// leaves the package.
var ErrMismatchedHashAndPassword = goerrors.New("hash and password mismatch", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// LockedError clones ErrAccountLocked with the remaining lockout minutes
// attached. Disclosing the remaining time is a deliberate usability
// trade-off.
func LockedError(minutesRemaining int) *goerrors.Error {
	return ErrAccountLocked.Clone().WithMetadata(map[string]any{
		"minutes_remaining": minutesRemaining,
	})
}

// TransientError wraps a storage or notification fault as retryable.
func TransientError(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
		WithTextCode("TRANSIENT")
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
