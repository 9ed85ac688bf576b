package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPurpose selects which one-time token flow a token belongs to
type TokenPurpose = string

const (
	// PurposePasswordReset tokens live 10 minutes by default
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeEmailVerification tokens live 24 hours by default
	PurposeEmailVerification TokenPurpose = "email_verification"
)

// MintOneTimeToken produces a high-entropy random token and the digest to
// persist. The plaintext is disclosed exactly once, in the delivery channel;
// storage only ever sees the digest.
func MintOneTimeToken() (plaintext, digest string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate one-time token")
	}

	plaintext = hex.EncodeToString(buf)
	return plaintext, DigestToken(plaintext), nil
}

// DigestToken hashes a presented token the way MintOneTimeToken does, so
// lookups go digest-to-digest.
func DigestToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// DigestsEqual compares two digests in constant time.
func DigestsEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func newTokenID() string {
	return uuid.NewString()
}
