package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for new password hashes. Existing digests
// carry their own cost, so raising this does not invalidate old hashes.
const BcryptCost = 12

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// unverifiedUserHash is compared against when the email matched no account,
// so the work done on the failure path does not depend on user existence.
var unverifiedUserHash, _ = bcrypt.GenerateFromPassword([]byte("go-authx.dummy"), BcryptCost)

// CompareAgainstDummyHash burns one bcrypt verification without revealing
// anything. Always returns ErrMismatchedHashAndPassword.
func CompareAgainstDummyHash(password string) error {
	_ = bcrypt.CompareHashAndPassword(unverifiedUserHash, []byte(password))
	return ErrMismatchedHashAndPassword
}
