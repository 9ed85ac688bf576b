package auth_test

import (
	"context"
	"errors"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/authxlabs/go-authx"
)

func TestPasswordResetInitUnknownEmailSucceedsSilently(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewInitializePasswordResetHandler(repo, mailer, testConfig())

	repo.users.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()

	var resp *auth.InitializePasswordResetResponse
	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{
		Email:      "ghost@example.com",
		OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	repo.users.AssertNotCalled(t, "SetOneTimeToken",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestPasswordResetInitPersistsDigestAndMails(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewInitializePasswordResetHandler(repo, mailer, testConfig())

	user := testUser()
	var mailed auth.Message

	repo.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil).Once()
	repo.users.On("SetOneTimeToken",
		mock.Anything, user.ID, auth.PurposePasswordReset, mock.Anything, mock.Anything,
	).Return(nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { mailed = args.Get(1).(auth.Message) }).
		Return(nil).Once()

	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{Email: user.Email})
	require.NoError(t, err)

	assert.Equal(t, user.Email, mailed.To)

	// the digest persisted is the hash of the token mailed, never the token
	digest := repo.users.Calls[1].Arguments.Get(3).(string)
	assert.NotContains(t, mailed.Text, digest)
	repo.users.AssertExpectations(t)
}

func TestPasswordResetInitWithdrawsDigestWhenMailFails(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewInitializePasswordResetHandler(repo, mailer, testConfig())

	user := testUser()

	repo.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil).Once()
	repo.users.On("SetOneTimeToken",
		mock.Anything, user.ID, auth.PurposePasswordReset, mock.Anything, mock.Anything,
	).Return(nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	repo.users.On("ClearOneTimeToken", mock.Anything, user.ID, auth.PurposePasswordReset).
		Return(nil).Once()

	err := handler.Execute(context.Background(), auth.InitializePasswordResetMessage{Email: user.Email})
	require.Error(t, err)
	repo.users.AssertExpectations(t)
}

func TestPasswordResetFinalizeInstallsNewPasswordAndRevokesSessions(t *testing.T) {
	repo := NewMockRepo()
	registry := &MockRegistry{}
	handler := auth.NewFinalizePasswordResetHandler(repo, auth.NewPasswordPolicy(0), registry)

	user := testUser()
	token := "a-plaintext-reset-token"

	repo.users.On("FindByOneTimeDigest",
		mock.Anything, mock.Anything, auth.PurposePasswordReset, auth.DigestToken(token), mock.Anything,
	).Return(user, nil).Once()
	repo.users.On("UpdatePasswordTx",
		mock.Anything, mock.Anything, user.ID, mock.MatchedBy(func(hash string) bool {
			return hash != "" && auth.ComparePasswordAndHash(testPassword, hash) == nil
		}),
	).Return(nil).Once()
	registry.On("RevokeAll", mock.Anything, user.ID).Return(nil).Once()

	var resp *auth.FinalizePasswordResetResponse
	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:           token,
		Password:        testPassword,
		PasswordConfirm: testPassword,
		OnResponse:      func(r *auth.FinalizePasswordResetResponse) { resp = r },
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	repo.users.AssertExpectations(t)
	registry.AssertExpectations(t)
}

func TestPasswordResetFinalizeRejectsUnknownOrExpiredToken(t *testing.T) {
	repo := NewMockRepo()
	registry := &MockRegistry{}
	handler := auth.NewFinalizePasswordResetHandler(repo, auth.NewPasswordPolicy(0), registry)

	repo.users.On("FindByOneTimeDigest",
		mock.Anything, mock.Anything, auth.PurposePasswordReset, mock.Anything, mock.Anything,
	).Return(nil, repository.NewRecordNotFound()).Once()

	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:           "expired-or-bogus",
		Password:        testPassword,
		PasswordConfirm: testPassword,
	})

	assert.ErrorIs(t, err, auth.ErrInvalidOneTimeToken)
	registry.AssertNotCalled(t, "RevokeAll", mock.Anything, mock.Anything)
}

func TestPasswordResetFinalizeRejectsMismatchBeforeLookup(t *testing.T) {
	repo := NewMockRepo()
	handler := auth.NewFinalizePasswordResetHandler(repo, auth.NewPasswordPolicy(0), &MockRegistry{})

	err := handler.Execute(context.Background(), auth.FinalizePasswordResetMessage{
		Token:           "whatever",
		Password:        testPassword,
		PasswordConfirm: "different",
	})

	assert.ErrorIs(t, err, auth.ErrPasswordMismatch)
	repo.users.AssertNotCalled(t, "FindByOneTimeDigest",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdatePasswordRequiresCurrentPassword(t *testing.T) {
	repo := NewMockRepo()
	registry := &MockRegistry{}
	handler := auth.NewUpdatePasswordHandler(repo, auth.NewPasswordPolicy(0), registry)

	user := loginUser()
	repo.users.On("FindByIDTx", mock.Anything, mock.Anything, user.ID).Return(user, nil).Once()

	err := handler.Execute(context.Background(), auth.UpdatePasswordMessage{
		UserID:          user.ID,
		CurrentPassword: "not the current password",
		NewPassword:     "an entirely new passphrase",
		PasswordConfirm: "an entirely new passphrase",
	})

	assert.ErrorIs(t, err, auth.ErrWrongCurrentPassword)
	repo.users.AssertNotCalled(t, "UpdatePasswordTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdatePasswordKeepsTheCurrentSession(t *testing.T) {
	repo := NewMockRepo()
	registry := &MockRegistry{}
	handler := auth.NewUpdatePasswordHandler(repo, auth.NewPasswordPolicy(0), registry)

	user := loginUser()
	newPassword := "an entirely new passphrase"

	repo.users.On("FindByIDTx", mock.Anything, mock.Anything, user.ID).Return(user, nil).Once()
	repo.users.On("UpdatePasswordTx", mock.Anything, mock.Anything, user.ID, mock.Anything).
		Return(nil).Once()
	registry.On("RevokeAllExcept", mock.Anything, user.ID, "current-refresh-token").
		Return(nil).Once()

	err := handler.Execute(context.Background(), auth.UpdatePasswordMessage{
		UserID:           user.ID,
		CurrentPassword:  testPassword,
		NewPassword:      newPassword,
		PasswordConfirm:  newPassword,
		KeepRefreshToken: "current-refresh-token",
	})

	require.NoError(t, err)
	registry.AssertExpectations(t)
}

func TestUpdatePasswordUnknownUser(t *testing.T) {
	repo := NewMockRepo()
	handler := auth.NewUpdatePasswordHandler(repo, auth.NewPasswordPolicy(0), &MockRegistry{})

	id := uuid.New()
	repo.users.On("FindByIDTx", mock.Anything, mock.Anything, id).
		Return(nil, repository.NewRecordNotFound()).Once()

	err := handler.Execute(context.Background(), auth.UpdatePasswordMessage{
		UserID:          id,
		CurrentPassword: testPassword,
		NewPassword:     "an entirely new passphrase",
		PasswordConfirm: "an entirely new passphrase",
	})

	assert.ErrorIs(t, err, auth.ErrNotFound)
}
