package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name            string `json:"name" example:"Pepe Rone" doc:"Display name, at most 50 characters."`
	Email           string `json:"email" example:"pepe.rone@example.com" doc:"Unique account email."`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	// RequestedRole is honored only when ActorRole may assign roles,
	// otherwise the account is created with RoleUser.
	RequestedRole UserRole `json:"user_role,omitempty"`
	ActorRole     UserRole `json:"-"`
	OnResponse    func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User    *User
	Success bool
}

// RegisterUserHandler creates an account and starts email verification.
// The account cannot log in until the verification token is redeemed.
type RegisterUserHandler struct {
	repo   RepositoryManager
	policy PasswordPolicy
	mailer Mailer
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

func NewRegisterUserHandler(repo RepositoryManager, policy PasswordPolicy, mailer Mailer, cfg Config) *RegisterUserHandler {
	cfg = cfg.WithDefaults()
	return &RegisterUserHandler{
		repo:   repo,
		policy: policy,
		mailer: normalizeMailer(mailer),
		ttl:    cfg.VerificationTokenTTL,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) WithClock(now func() time.Time) *RegisterUserHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	name := strings.TrimSpace(event.Name)
	email := NormalizeEmail(event.Email)

	if name == "" || len(name) > 50 {
		return goerrors.New("name must be between 1 and 50 characters", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"field": "name"})
	}

	if event.Password != event.PasswordConfirm {
		return ErrPasswordMismatch
	}

	if err := h.policy.Check(event.Password, name, email); err != nil {
		return err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	verifyToken, verifyDigest, err := MintOneTimeToken()
	if err != nil {
		return err
	}

	role := RoleUser
	if event.RequestedRole != "" && CanAssignRole(event.ActorRole) && IsValidRole(event.RequestedRole) {
		role = event.RequestedRole
	}

	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	user.EmailVerificationDigest = verifyDigest
	expires := h.now().Add(h.ttl)
	user.EmailVerificationExpires = &expires

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if existing, err := h.repo.Users().GetByEmailTx(ctx, tx, email); err == nil && existing != nil {
			return ErrDuplicateEmail
		} else if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if err := h.mailer.Send(ctx, verificationMessage(user.Email, verifyToken)); err != nil {
		// the account stands; the digest is cleared so the undelivered
		// token can never be redeemed, and the user can request a new one
		h.logger.Warn("verification email failed, clearing digest", "email", user.Email, "error", err)
		if clearErr := h.repo.Users().ClearOneTimeToken(ctx, user.ID, PurposeEmailVerification); clearErr != nil {
			h.logger.Error("failed to clear verification digest", "user_id", user.ID.String(), "error", clearErr)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user, Success: true})
	}

	return nil
}

func verificationMessage(email, token string) Message {
	return Message{
		To:      email,
		Subject: "Verify your email address",
		Text: fmt.Sprintf(
			"Welcome! Confirm your email address by submitting this token within 24 hours: %s",
			token,
		),
	}
}
