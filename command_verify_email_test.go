package auth_test

import (
	"context"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/authxlabs/go-authx"
)

func TestVerifyEmailConsumesTokenAndFlipsFlag(t *testing.T) {
	repo := NewMockRepo()
	handler := auth.NewVerifyEmailHandler(repo)

	user := testUser()
	user.EmailVerified = false
	token := "a-plaintext-verification-token"

	repo.users.On("FindByOneTimeDigest",
		mock.Anything, mock.Anything, auth.PurposeEmailVerification, auth.DigestToken(token), mock.Anything,
	).Return(user, nil).Once()
	repo.users.On("MarkEmailVerifiedTx", mock.Anything, mock.Anything, user.ID).
		Return(nil).Once()

	var resp *auth.VerifyEmailResponse
	err := handler.Execute(context.Background(), auth.VerifyEmailMessage{
		Token:      token,
		OnResponse: func(r *auth.VerifyEmailResponse) { resp = r },
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.True(t, resp.User.EmailVerified)
	assert.Empty(t, resp.User.EmailVerificationDigest)
	repo.users.AssertExpectations(t)
}

func TestVerifyEmailRejectsUnknownToken(t *testing.T) {
	repo := NewMockRepo()
	handler := auth.NewVerifyEmailHandler(repo)

	repo.users.On("FindByOneTimeDigest",
		mock.Anything, mock.Anything, auth.PurposeEmailVerification, mock.Anything, mock.Anything,
	).Return(nil, repository.NewRecordNotFound()).Once()

	err := handler.Execute(context.Background(), auth.VerifyEmailMessage{Token: "bogus"})

	assert.ErrorIs(t, err, auth.ErrInvalidOneTimeToken)
	repo.users.AssertNotCalled(t, "MarkEmailVerifiedTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerificationRequestResendsToken(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewRequestEmailVerificationHandler(repo, mailer, testConfig())

	user := testUser()
	user.EmailVerified = false

	repo.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil).Once()
	repo.users.On("SetOneTimeToken",
		mock.Anything, user.ID, auth.PurposeEmailVerification, mock.Anything, mock.Anything,
	).Return(nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	err := handler.Execute(context.Background(), auth.RequestEmailVerificationMessage{Email: user.Email})

	require.NoError(t, err)
	repo.users.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestVerificationRequestIsSilentForVerifiedAccounts(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewRequestEmailVerificationHandler(repo, mailer, testConfig())

	user := testUser()
	user.EmailVerified = true

	repo.users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil).Once()

	var resp *auth.RequestEmailVerificationResponse
	err := handler.Execute(context.Background(), auth.RequestEmailVerificationMessage{
		Email:      user.Email,
		OnResponse: func(r *auth.RequestEmailVerificationResponse) { resp = r },
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	repo.users.AssertNotCalled(t, "SetOneTimeToken",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestVerificationRequestIsSilentForUnknownEmails(t *testing.T) {
	repo := NewMockRepo()
	mailer := &MockMailer{}
	handler := auth.NewRequestEmailVerificationHandler(repo, mailer, testConfig())

	repo.users.On("GetByEmail", mock.Anything, "ghost@example.com").
		Return(nil, repository.NewRecordNotFound()).Once()

	var resp *auth.RequestEmailVerificationResponse
	err := handler.Execute(context.Background(), auth.RequestEmailVerificationMessage{
		Email:      "ghost@example.com",
		OnResponse: func(r *auth.RequestEmailVerificationResponse) { resp = r },
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
