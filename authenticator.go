package auth

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// CredentialStore is the slice of Users the authenticator needs.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	SaveLockout(ctx context.Context, id uuid.UUID, prev, next LockoutState) (bool, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// ActivityAppender records login attempts.
type ActivityAppender interface {
	Append(ctx context.Context, record *LoginActivity) error
}

// LoginResult is what a successful login returns to the transport layer.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *User  `json:"user"`
}

// RefreshResult is what a successful rotation returns.
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Auther drives the authentication session lifecycle: credential
// verification with lockout accounting, token pair issuance, refresh
// rotation, and logout. Every attempt leaves exactly one activity record.
type Auther struct {
	store    CredentialStore
	activity ActivityAppender
	registry RevocationRegistry
	tokens   TokenService
	lockout  LockoutPolicy
	logger   Logger
	now      func() time.Time
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(store CredentialStore, activity ActivityAppender, registry RevocationRegistry, tokens TokenService, cfg Config) *Auther {
	cfg = cfg.WithDefaults()

	return &Auther{
		store:    store,
		activity: activity,
		registry: registry,
		tokens:   tokens,
		lockout:  cfg.Lockout,
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Login verifies the credential and issues a token pair. Failures are
// uniform ErrInvalidCredentials except the deliberate lockout disclosure;
// each attempt appends one activity record, including attempts against
// unknown emails.
func (s *Auther) Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error) {
	now := s.now()

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// burn a hash comparison so unknown emails cost the same
			// as wrong passwords
			_ = CompareAgainstDummyHash(password)
			s.recordAttempt(ctx, nil, client, LoginOutcomeFailed, FailureInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		return nil, TransientError(err, "failed to look up user")
	}

	state := user.Lockout()
	if cleared, changed := state.Observe(s.lockout, now); changed {
		// the lockout window has passed, lazily reset the machine
		if ok, err := s.store.SaveLockout(ctx, user.ID, state, cleared); err != nil {
			return nil, err
		} else if ok {
			state = cleared
			user.ApplyLockout(cleared)
		}
	}

	if state.IsLocked(now) {
		s.recordAttempt(ctx, user, client, LoginOutcomeFailed, FailureAccountLocked)
		return nil, LockedError(state.MinutesRemaining(now))
	}

	if !user.IsActive() {
		s.recordAttempt(ctx, user, client, LoginOutcomeFailed, FailureAccountInactive)
		return nil, ErrAccountInactive
	}

	if !user.EmailVerified {
		s.recordAttempt(ctx, user, client, LoginOutcomeFailed, FailureUnverifiedEmail)
		return nil, ErrEmailNotVerified
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.registerFailedLogin(ctx, user)
		s.recordAttempt(ctx, user, client, LoginOutcomeFailed, FailureInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.TrackSuccessfulLogin(ctx, user); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	accessToken, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, err
	}

	refreshToken, expiresAt, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	// the refresh token becomes honored only at this point, once the
	// handler is committed to returning it
	if err := s.registry.Record(ctx, refreshToken, user.ID, expiresAt); err != nil {
		return nil, err
	}

	s.recordAttempt(ctx, user, client, LoginOutcomeSuccess, "")

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         user,
	}, nil
}

// Refresh rotates a refresh token: the presented token is withdrawn and a
// new pair is issued in the same logical operation. A replayed token fails
// exactly like a forged one.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	revoked, err := s.registry.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, TransientError(err, "failed to look up user")
	}

	if !user.IsActive() {
		return nil, ErrInvalidRefreshToken
	}

	if user.ChangedPasswordAfter(claims.IssuedAt()) {
		return nil, ErrInvalidRefreshToken
	}

	accessToken, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, err
	}

	newRefresh, expiresAt, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, err
	}

	claimed, err := s.registry.Rotate(ctx, refreshToken, newRefresh, user.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// someone else rotated this token first; treat it as stolen
		return nil, ErrInvalidRefreshToken
	}

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout withdraws a refresh token. It is idempotent and succeeds even
// when the token is already invalid or unknown.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if _, err := s.tokens.ValidateRefresh(refreshToken); err != nil {
		// structurally invalid tokens have nothing to withdraw
		return nil
	}

	return s.registry.Revoke(ctx, refreshToken)
}

// LogoutEverywhere withdraws every refresh token the user holds.
func (s *Auther) LogoutEverywhere(ctx context.Context, userID uuid.UUID) error {
	return s.registry.RevokeAll(ctx, userID)
}

// VerifyAccess validates an access token and layers the registry on top of
// structural verification for callers protecting resources.
func (s *Auther) VerifyAccess(tokenString string) (*AccessClaims, error) {
	return s.tokens.ValidateAccess(tokenString)
}

func (s *Auther) registerFailedLogin(ctx context.Context, user *User) {
	state := user.Lockout()

	// compare-and-swap loop: when a concurrent attempt advanced the
	// counter first, reload and reapply so no failure goes uncounted
	for i := 0; i < 3; i++ {
		next := state.OnFailure(s.lockout, s.now())

		ok, err := s.store.SaveLockout(ctx, user.ID, state, next)
		if err != nil {
			s.logger.Error("failed to persist failed login", "user_id", user.ID.String(), "error", err)
			return
		}
		if ok {
			user.ApplyLockout(next)
			return
		}

		fresh, err := s.store.FindByID(ctx, user.ID)
		if err != nil {
			s.logger.Error("failed to reload user during lockout update", "user_id", user.ID.String(), "error", err)
			return
		}
		state = fresh.Lockout()
	}

	s.logger.Warn("gave up persisting lockout transition after contention", "user_id", user.ID.String())
}

func (s *Auther) recordAttempt(ctx context.Context, user *User, client ClientInfo, outcome LoginOutcome, reason FailureReason) {
	record := &LoginActivity{
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Outcome:   outcome,
		Reason:    reason,
	}
	if user != nil {
		id := user.ID
		record.UserID = &id
	}

	if err := s.activity.Append(ctx, record); err != nil {
		s.logger.Warn("failed to append login activity", "error", err)
	}
}
