package auth_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/authxlabs/go-authx"
)

func setupUserRepo(t *testing.T) (auth.RepositoryManager, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	ctx := context.Background()
	_, err = bunDB.NewCreateTable().Model((*auth.User)(nil)).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewCreateTable().Model((*auth.LoginActivity)(nil)).Exec(ctx)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return auth.NewRepositoryManager(bunDB), cleanup
}

func registerTestUser(t *testing.T, repo auth.RepositoryManager, email string) *auth.User {
	t.Helper()

	user, err := repo.Users().Register(context.Background(), &auth.User{
		Name:         "Pepe Rone",
		Email:        email,
		PasswordHash: "$2a$04$notarealhashnotarealhashnotarealhashnotarealha",
	})
	require.NoError(t, err)
	return user
}

func TestUsersRepositoryNormalizesEmailOnRegisterAndLookup(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	created := registerTestUser(t, repo, "  PEPE.Rone@Example.COM ")
	assert.Equal(t, "pepe.rone@example.com", created.Email)
	assert.Equal(t, auth.RoleUser, created.Role)
	assert.Equal(t, auth.UserStatusActive, created.Status)

	found, err := repo.Users().GetByEmail(ctx, "Pepe.Rone@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.Users().GetByEmail(ctx, "nobody@example.com")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersRepositorySaveLockoutIsCompareAndSwap(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	user := registerTestUser(t, repo, "lockout@example.com")

	prev := auth.LockoutState{}
	next := auth.LockoutState{Attempts: 1}

	applied, err := repo.Users().SaveLockout(ctx, user.ID, prev, next)
	require.NoError(t, err)
	assert.True(t, applied)

	// a second writer still holding the stale previous state loses
	applied, err = repo.Users().SaveLockout(ctx, user.ID, prev, auth.LockoutState{Attempts: 1})
	require.NoError(t, err)
	assert.False(t, applied)

	reloaded, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.FailedLoginAttempts)
}

func TestUsersRepositoryTrackSuccessfulLoginResetsCounters(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	user := registerTestUser(t, repo, "counter@example.com")

	until := time.Now().UTC().Add(30 * time.Minute)
	applied, err := repo.Users().SaveLockout(ctx, user.ID, auth.LockoutState{}, auth.LockoutState{
		Attempts:    5,
		Locked:      true,
		LockedUntil: &until,
	})
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, repo.Users().TrackSuccessfulLogin(ctx, user))

	reloaded, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, reloaded.FailedLoginAttempts)
	assert.False(t, reloaded.AccountLocked)
	assert.Nil(t, reloaded.AccountLockedUntil)
	assert.NotNil(t, reloaded.LastLoginAt)
}

func TestUsersRepositoryPasswordUpdateClearsResetDigest(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	user := registerTestUser(t, repo, "reset@example.com")

	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Users().SetOneTimeToken(ctx, user.ID, auth.PurposePasswordReset, "digest-1", expires))

	require.NoError(t, repo.Users().UpdatePassword(ctx, user.ID, "$2a$04$anotherhashanotherhashanotherhashanotherhashan"))

	reloaded, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.PasswordResetDigest)
	assert.Nil(t, reloaded.PasswordResetExpires)
	assert.NotNil(t, reloaded.PasswordChangedAt)
}

func TestUsersRepositoryOneTimeDigestLookupHonorsExpiry(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	user := registerTestUser(t, repo, "digest@example.com")
	now := time.Now().UTC()

	require.NoError(t, repo.Users().SetOneTimeToken(ctx, user.ID, auth.PurposeEmailVerification, "digest-2", now.Add(time.Hour)))

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := repo.Users().FindByOneTimeDigest(ctx, tx, auth.PurposeEmailVerification, "digest-2", now)
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
		return repo.Users().MarkEmailVerifiedTx(ctx, tx, found.ID)
	})
	require.NoError(t, err)

	reloaded, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.EmailVerified)
	assert.Empty(t, reloaded.EmailVerificationDigest)

	// a consumed digest comes back not found
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.Users().FindByOneTimeDigest(ctx, tx, auth.PurposeEmailVerification, "digest-2", now)
		assert.True(t, repository.IsRecordNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestUsersRepositorySecurityStateTransitions(t *testing.T) {
	repo, cleanup := setupUserRepo(t)
	defer cleanup()
	ctx := context.Background()

	user := registerTestUser(t, repo, "admin-target@example.com")

	role := auth.RoleModerator
	updated, err := repo.Users().UpdateSecurityState(ctx, nil, user.ID, auth.SecurityStatePatch{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, updated.Role)

	reloaded, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, reloaded.Role)

	status := auth.UserStatusSuspended
	_, err = repo.Users().UpdateSecurityState(ctx, nil, user.ID, auth.SecurityStatePatch{Status: &status})
	require.NoError(t, err)

	reloaded, err = repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusSuspended, reloaded.Status)
}
