package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "user.password_reset_init" }

type InitializePasswordResetResponse struct {
	Success bool
}

// InitializePasswordResetHandler mints a reset token and mails it. The
// response is identical whether or not the email maps to an account, so the
// endpoint cannot be used to probe which emails are registered.
type InitializePasswordResetHandler struct {
	repo   RepositoryManager
	mailer Mailer
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

func NewInitializePasswordResetHandler(repo RepositoryManager, mailer Mailer, cfg Config) *InitializePasswordResetHandler {
	cfg = cfg.WithDefaults()
	return &InitializePasswordResetHandler{
		repo:   repo,
		mailer: normalizeMailer(mailer),
		ttl:    cfg.ResetTokenTTL,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) WithClock(now func() time.Time) *InitializePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(&InitializePasswordResetResponse{Success: true})
		}
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// same answer as the happy path
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, digest, err := MintOneTimeToken()
	if err != nil {
		return err
	}

	expires := h.now().Add(h.ttl)
	if err := h.repo.Users().SetOneTimeToken(ctx, user.ID, PurposePasswordReset, digest, expires); err != nil {
		return err
	}

	if err := h.mailer.Send(ctx, passwordResetMessage(user.Email, token, h.ttl)); err != nil {
		// a digest nobody received is a dead end for the user and a live
		// credential in storage, so withdraw it before failing
		if clearErr := h.repo.Users().ClearOneTimeToken(ctx, user.ID, PurposePasswordReset); clearErr != nil {
			h.logger.Error("failed to withdraw undelivered reset digest", "user_id", user.ID.String(), "error", clearErr)
		}
		return TransientError(err, "failed to send password reset email")
	}

	respond()
	return nil
}

func passwordResetMessage(email, token string, ttl time.Duration) Message {
	return Message{
		To:      email,
		Subject: "Your password reset token",
		Text: fmt.Sprintf(
			"Submit this token with your new password within %d minutes: %s\nIf you did not request a reset, ignore this email.",
			int(ttl.Minutes()),
			token,
		),
	}
}
