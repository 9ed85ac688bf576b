// Package auth provides the credential and session lifecycle for a user
// account system: bcrypt password storage, access/refresh JWT issuance and
// rotation, refresh token revocation, login lockout, email verification, and
// password reset.
//
// Login and sessions:
//   - Auther is the front door. Login verifies a credential against the
//     stored bcrypt hash, walks the lockout state machine on failure, and on
//     success issues an access/refresh token pair and records the refresh
//     token in the RevocationRegistry. Refresh rotates the pair atomically so
//     a replayed refresh token loses the race and is rejected.
//   - TokenService signs and validates the two token classes with separate
//     secrets. It is stateless; revocation lives entirely in the registry.
//
// Lockout:
//   - LockoutState is a pure counter-and-deadline state machine persisted on
//     the user row. Updates go through a compare-and-swap so two concurrent
//     failures never lose a count, and the caller retries on contention.
//
// One-time tokens:
//   - Email verification and password reset share one mechanism: a random
//     token is mailed in plaintext while only its SHA-256 digest is stored.
//     Redemption looks up the digest and clears it in one transaction, so a
//     token works exactly once.
//
// Command handlers (RegisterUserHandler, InitializePasswordResetHandler, and
// friends) wrap each flow as an Execute(ctx, message) unit with an optional
// OnResponse callback; AuthController binds them to a fiber JSON API.
package auth
