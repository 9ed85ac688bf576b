package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Plaintext verification token from the email."`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "user.email_verify" }

type VerifyEmailResponse struct {
	User    *User
	Success bool
}

// VerifyEmailHandler consumes a verification token and flips the account to
// verified. Lookup and digest clear share a transaction so the token is
// single use.
type VerifyEmailHandler struct {
	repo RepositoryManager
	now  func() time.Time
}

func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{repo: repo, now: time.Now}
}

func (h *VerifyEmailHandler) WithClock(now func() time.Time) *VerifyEmailHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	digest := DigestToken(event.Token)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().FindByOneTimeDigest(ctx, tx, PurposeEmailVerification, digest, h.now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOneTimeToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification token")
		}

		if err := h.repo.Users().MarkEmailVerifiedTx(ctx, tx, user.ID); err != nil {
			return err
		}

		user.EmailVerified = true
		user.EmailVerificationDigest = ""
		user.EmailVerificationExpires = nil
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(&VerifyEmailResponse{User: user, Success: true})
	}

	return nil
}
