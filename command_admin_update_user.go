package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AdminUpdateUserMessage struct {
	// ActorRole is the role of the user performing the change, taken from
	// a verified access token.
	ActorRole   UserRole    `json:"-"`
	UserID      uuid.UUID   `json:"user_id"`
	Role        *UserRole   `json:"user_role,omitempty"`
	Status      *UserStatus `json:"status,omitempty"`
	Permissions *[]string   `json:"permissions,omitempty"`
	OnResponse  func(resp *AdminUpdateUserResponse)
}

func (e AdminUpdateUserMessage) Type() string { return "user.admin_update" }

type AdminUpdateUserResponse struct {
	User    *User
	Success bool
}

// AdminUpdateUserHandler applies role, status, and permission changes.
// Moving an account to suspended or inactive revokes every refresh token it
// holds, so a suspension takes effect within one access token lifetime.
type AdminUpdateUserHandler struct {
	repo     RepositoryManager
	registry RevocationRegistry
	logger   Logger
}

func NewAdminUpdateUserHandler(repo RepositoryManager, registry RevocationRegistry) *AdminUpdateUserHandler {
	return &AdminUpdateUserHandler{
		repo:     repo,
		registry: registry,
		logger:   defLogger{},
	}
}

func (h *AdminUpdateUserHandler) WithLogger(logger Logger) *AdminUpdateUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AdminUpdateUserHandler) Execute(ctx context.Context, event AdminUpdateUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during admin user update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AdminUpdateUserHandler) execute(ctx context.Context, event AdminUpdateUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if !CanManageUsers(event.ActorRole) {
		return ErrForbidden
	}

	if event.Role != nil && !IsValidRole(*event.Role) {
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"user_role": *event.Role})
	}
	if event.Status != nil && !IsValidStatus(*event.Status) {
		return goerrors.New("unknown status", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"status": *event.Status})
	}

	user := &User{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().UpdateSecurityState(ctx, tx, event.UserID, SecurityStatePatch{
			Role:        event.Role,
			Status:      event.Status,
			Permissions: event.Permissions,
		})
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "admin user update transaction failed")
	}

	if event.Status != nil && RevokesSessions(*event.Status) && h.registry != nil {
		if err := h.registry.RevokeAll(ctx, user.ID); err != nil {
			h.logger.Error("failed to revoke sessions after status change", "user_id", user.ID.String(), "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&AdminUpdateUserResponse{User: user, Success: true})
	}

	return nil
}
