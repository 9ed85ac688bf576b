package auth

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetUserPasswordSQL rehashes the credential and stamps the change time in
// one statement. Stamping passwordChangedAt here keeps it strictly after any
// token issued before the statement ran.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"password_reset_digest" = '',
	"password_reset_expires" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// SaveLockoutSQL applies a lockout transition guarded by the previous
// counter value, a compare-and-swap so concurrent failures never undercount.
var SaveLockoutSQL = `UPDATE "users" AS "usr"
SET
	"failed_login_attempts" = ?,
	"account_locked" = ?,
	"account_locked_until" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."failed_login_attempts" = ?
AND "usr"."account_locked" = ?;`

// TrackSuccessfulLoginSQL resets the lockout machine and stamps last_login.
var TrackSuccessfulLoginSQL = `UPDATE "users" AS "usr"
SET
	"last_login_at" = ?,
	"failed_login_attempts" = 0,
	"account_locked" = FALSE,
	"account_locked_until" = NULL
WHERE
	("usr".id = ?)
	AND "usr"."deleted_at" IS NULL;`

type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	// SaveLockout persists a lockout transition with a conditional update
	// guarded by the previous state. Returns false when another request
	// won the race; the caller reloads and reapplies.
	SaveLockout(ctx context.Context, id uuid.UUID, prev, next LockoutState) (bool, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackActivity(ctx context.Context, id uuid.UUID) error

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	SetOneTimeToken(ctx context.Context, id uuid.UUID, purpose TokenPurpose, digest string, expires time.Time) error
	ClearOneTimeToken(ctx context.Context, id uuid.UUID, purpose TokenPurpose) error
	FindByOneTimeDigest(ctx context.Context, tx bun.IDB, purpose TokenPurpose, digest string, now time.Time) (*User, error)
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	UpdateSecurityState(ctx context.Context, tx bun.IDB, id uuid.UUID, patch SecurityStatePatch) (*User, error)
}

// SecurityStatePatch is the admin-editable slice of a user's security state.
// Nil fields are left untouched.
type SecurityStatePatch struct {
	Role        *UserRole
	Status      *UserStatus
	Permissions *[]string
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) SaveLockout(ctx context.Context, id uuid.UUID, prev, next LockoutState) (bool, error) {
	res, err := a.db.NewRaw(SaveLockoutSQL,
		next.Attempts, next.Locked, next.LockedUntil,
		id, prev.Attempts, prev.Locked,
	).Exec(ctx)
	if err != nil {
		return false, TransientError(err, "failed to persist lockout transition")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, TransientError(err, "failed to read lockout update result")
	}

	return affected == 1, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(TrackSuccessfulLoginSQL, loggedInAt, user.ID).Exec(ctx)
	if err != nil {
		return TransientError(err, "failed to track successful login")
	}

	now := loggedInAt
	user.LastLoginAt = &now
	user.ApplyLockout(LockoutState{})
	return nil
}

func (a *users) TrackActivity(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_active_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return TransientError(err, "failed to track user activity")
	}
	return nil
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, time.Now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) SetOneTimeToken(ctx context.Context, id uuid.UUID, purpose TokenPurpose, digest string, expires time.Time) error {
	digestCol, expiresCol, err := oneTimeColumns(purpose)
	if err != nil {
		return err
	}

	_, err = a.db.NewUpdate().
		Model((*User)(nil)).
		Set(digestCol+" = ?", digest).
		Set(expiresCol+" = ?", expires).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return TransientError(err, "failed to store one-time token digest")
	}
	return nil
}

func (a *users) ClearOneTimeToken(ctx context.Context, id uuid.UUID, purpose TokenPurpose) error {
	digestCol, expiresCol, err := oneTimeColumns(purpose)
	if err != nil {
		return err
	}

	_, err = a.db.NewUpdate().
		Model((*User)(nil)).
		Set(digestCol+" = ''").
		Set(expiresCol+" = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return TransientError(err, "failed to clear one-time token digest")
	}
	return nil
}

func (a *users) FindByOneTimeDigest(ctx context.Context, tx bun.IDB, purpose TokenPurpose, digest string, now time.Time) (*User, error) {
	digestCol, expiresCol, err := oneTimeColumns(purpose)
	if err != nil {
		return nil, err
	}

	record := &User{}
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias."+digestCol+" = ?", digest).
		Where("?TableAlias."+expiresCol+" > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"purpose": purpose})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_email_verified = TRUE").
		Set("email_verification_digest = ''").
		Set("email_verification_expires = NULL").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return TransientError(err, "failed to mark email verified")
	}
	return nil
}

func (a *users) UpdateSecurityState(ctx context.Context, tx bun.IDB, id uuid.UUID, patch SecurityStatePatch) (*User, error) {
	if tx == nil {
		tx = a.db
	}

	record, err := a.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		return nil, err
	}

	q := tx.NewUpdate().Model((*User)(nil)).Where("id = ?", id)
	changed := false

	if patch.Role != nil && *patch.Role != record.Role {
		q = q.Set("user_role = ?", *patch.Role)
		record.Role = *patch.Role
		changed = true
	}
	if patch.Status != nil && *patch.Status != record.Status {
		record.EnsureStatus()
		if !CanTransitionStatus(record.Status, *patch.Status) {
			return nil, goerrors.New("invalid status transition", goerrors.CategoryValidation).
				WithMetadata(map[string]any{"from": record.Status, "to": *patch.Status})
		}
		q = q.Set("status = ?", *patch.Status)
		record.Status = *patch.Status
		changed = true
	}
	if patch.Permissions != nil {
		q = q.Set("permissions = ?", *patch.Permissions)
		record.Permissions = *patch.Permissions
		changed = true
	}

	if !changed {
		return record, nil
	}

	if _, err := q.Exec(ctx); err != nil {
		return nil, TransientError(err, "failed to update security state")
	}

	return record, nil
}

func oneTimeColumns(purpose TokenPurpose) (digestCol, expiresCol string, err error) {
	switch purpose {
	case PurposePasswordReset:
		return "password_reset_digest", "password_reset_expires", nil
	case PurposeEmailVerification:
		return "email_verification_digest", "email_verification_expires", nil
	default:
		return "", "", goerrors.New("unknown one-time token purpose", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"purpose": purpose})
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
