package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

type RequestEmailVerificationMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *RequestEmailVerificationResponse)
}

func (e RequestEmailVerificationMessage) Type() string { return "user.email_verification_request" }

type RequestEmailVerificationResponse struct {
	Success bool
}

// RequestEmailVerificationHandler resends a verification token. Unknown and
// already verified emails get the same answer as the happy path, so the
// endpoint discloses nothing about which emails are registered.
type RequestEmailVerificationHandler struct {
	repo   RepositoryManager
	mailer Mailer
	ttl    time.Duration
	logger Logger
	now    func() time.Time
}

func NewRequestEmailVerificationHandler(repo RepositoryManager, mailer Mailer, cfg Config) *RequestEmailVerificationHandler {
	cfg = cfg.WithDefaults()
	return &RequestEmailVerificationHandler{
		repo:   repo,
		mailer: normalizeMailer(mailer),
		ttl:    cfg.VerificationTokenTTL,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (h *RequestEmailVerificationHandler) WithLogger(logger Logger) *RequestEmailVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestEmailVerificationHandler) WithClock(now func() time.Time) *RequestEmailVerificationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RequestEmailVerificationHandler) Execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailVerificationHandler) execute(ctx context.Context, event RequestEmailVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	respond := func() {
		if event.OnResponse != nil {
			event.OnResponse(&RequestEmailVerificationResponse{Success: true})
		}
	}

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			respond()
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification request")
	}

	if user.EmailVerified {
		respond()
		return nil
	}

	token, digest, err := MintOneTimeToken()
	if err != nil {
		return err
	}

	expires := h.now().Add(h.ttl)
	if err := h.repo.Users().SetOneTimeToken(ctx, user.ID, PurposeEmailVerification, digest, expires); err != nil {
		return err
	}

	if err := h.mailer.Send(ctx, verificationMessage(user.Email, token)); err != nil {
		if clearErr := h.repo.Users().ClearOneTimeToken(ctx, user.ID, PurposeEmailVerification); clearErr != nil {
			h.logger.Error("failed to withdraw undelivered verification digest", "user_id", user.ID.String(), "error", clearErr)
		}
		return TransientError(err, "failed to send verification email")
	}

	respond()
	return nil
}
