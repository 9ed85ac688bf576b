package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdatePasswordMessage struct {
	UserID          uuid.UUID `json:"user_id"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
	PasswordConfirm string    `json:"password_confirm"`
	// KeepRefreshToken, when set, survives the revocation sweep so the
	// session performing the change stays signed in.
	KeepRefreshToken string `json:"-"`
	OnResponse       func(resp *UpdatePasswordResponse)
}

func (e UpdatePasswordMessage) Type() string { return "user.password_update" }

type UpdatePasswordResponse struct {
	User    *User
	Success bool
}

// UpdatePasswordHandler changes the credential of a signed-in user. The
// current password is required as a second proof of possession; the access
// token alone is not enough.
type UpdatePasswordHandler struct {
	repo     RepositoryManager
	policy   PasswordPolicy
	registry RevocationRegistry
	logger   Logger
}

func NewUpdatePasswordHandler(repo RepositoryManager, policy PasswordPolicy, registry RevocationRegistry) *UpdatePasswordHandler {
	return &UpdatePasswordHandler{
		repo:     repo,
		policy:   policy,
		registry: registry,
		logger:   defLogger{},
	}
}

func (h *UpdatePasswordHandler) WithLogger(logger Logger) *UpdatePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdatePasswordHandler) Execute(ctx context.Context, event UpdatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdatePasswordHandler) execute(ctx context.Context, event UpdatePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.NewPassword != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().FindByIDTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for password update")
		}

		if err := ComparePasswordAndHash(event.CurrentPassword, user.PasswordHash); err != nil {
			return ErrWrongCurrentPassword
		}

		if err := h.policy.Check(event.NewPassword, user.Name, user.Email); err != nil {
			return err
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password update transaction failed")
	}

	if h.registry != nil {
		if event.KeepRefreshToken != "" {
			err = h.registry.RevokeAllExcept(ctx, user.ID, event.KeepRefreshToken)
		} else {
			err = h.registry.RevokeAll(ctx, user.ID)
		}
		if err != nil {
			h.logger.Error("failed to revoke sessions after password change", "user_id", user.ID.String(), "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdatePasswordResponse{User: user, Success: true})
	}

	return nil
}
