package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token" doc:"Plaintext reset token from the email."`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	OnResponse      func(resp *FinalizePasswordResetResponse)
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	User    *User
	Success bool
}

// FinalizePasswordResetHandler consumes a reset token and installs the new
// credential. The token is single use: the lookup and the digest clear happen
// in one transaction, so a second redemption of the same token finds nothing.
// Every live refresh token for the account is revoked afterwards.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	policy   PasswordPolicy
	registry RevocationRegistry
	logger   Logger
	now      func() time.Time
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, policy PasswordPolicy, registry RevocationRegistry) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		policy:   policy,
		registry: registry,
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Password != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	user := &User{}
	digest := DigestToken(event.Token)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().FindByOneTimeDigest(ctx, tx, PurposePasswordReset, digest, h.now())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidOneTimeToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up reset token")
		}

		if err := h.policy.Check(event.Password, user.Name, user.Email); err != nil {
			return err
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		// rehash, changed-at stamp, and digest clear are one statement
		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to install new password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	if h.registry != nil {
		if err := h.registry.RevokeAll(ctx, user.ID); err != nil {
			h.logger.Error("failed to revoke sessions after password reset", "user_id", user.ID.String(), "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{User: user, Success: true})
	}

	return nil
}
