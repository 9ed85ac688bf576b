package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/authxlabs/go-authx"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.NoError(t, auth.ComparePasswordAndHash("correct horse battery staple", hash))

	err = auth.ComparePasswordAndHash("wrong password", hash)
	assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
}

func TestHashPasswordCost(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.BcryptCost, cost)
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := auth.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrNoEmptyString)
}

func TestCompareAgainstDummyHashAlwaysFails(t *testing.T) {
	err := auth.CompareAgainstDummyHash("anything at all")
	assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
}
