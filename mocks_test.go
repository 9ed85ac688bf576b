package auth_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	auth "github.com/authxlabs/go-authx"
)

// MockUsers mocks the subset of the Users repository the flows touch. The
// embedded interface covers the rest; calling an unmocked method panics,
// which is exactly what a test wants.
type MockUsers struct {
	mock.Mock
	auth.Users
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	args := m.Called(ctx, tx, email)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, tx, id)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, tx, user)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) SaveLockout(ctx context.Context, id uuid.UUID, prev, next auth.LockoutState) (bool, error) {
	args := m.Called(ctx, id, prev, next)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUsers) TrackActivity(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) SetOneTimeToken(ctx context.Context, id uuid.UUID, purpose auth.TokenPurpose, digest string, expires time.Time) error {
	args := m.Called(ctx, id, purpose, digest, expires)
	return args.Error(0)
}

func (m *MockUsers) ClearOneTimeToken(ctx context.Context, id uuid.UUID, purpose auth.TokenPurpose) error {
	args := m.Called(ctx, id, purpose)
	return args.Error(0)
}

func (m *MockUsers) FindByOneTimeDigest(ctx context.Context, tx bun.IDB, purpose auth.TokenPurpose, digest string, now time.Time) (*auth.User, error) {
	args := m.Called(ctx, tx, purpose, digest, now)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) UpdateSecurityState(ctx context.Context, tx bun.IDB, id uuid.UUID, patch auth.SecurityStatePatch) (*auth.User, error) {
	args := m.Called(ctx, tx, id, patch)
	if u, ok := args.Get(0).(*auth.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockActivities records appended login activity for assertions.
type MockActivities struct {
	mock.Mock
	auth.LoginActivities
}

func (m *MockActivities) Append(ctx context.Context, record *auth.LoginActivity) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockActivities) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*auth.LoginActivity, error) {
	args := m.Called(ctx, userID, limit)
	if records, ok := args.Get(0).([]*auth.LoginActivity); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRegistry mocks the revocation registry.
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Record(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	args := m.Called(ctx, token, userID, expiresAt)
	return args.Error(0)
}

func (m *MockRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) Revoke(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockRegistry) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockRegistry) RevokeAllExcept(ctx context.Context, userID uuid.UUID, keep string) error {
	args := m.Called(ctx, userID, keep)
	return args.Error(0)
}

func (m *MockRegistry) Rotate(ctx context.Context, oldToken, newToken string, userID uuid.UUID, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, oldToken, newToken, userID, expiresAt)
	return args.Bool(0), args.Error(1)
}

// MockMailer records outbound messages.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg auth.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockRepo is a RepositoryManager whose transactions run the callback
// directly with a zero transaction handle; the repositories behind it are
// mocks, so nothing touches the handle.
type MockRepo struct {
	users      *MockUsers
	activities *MockActivities
}

func NewMockRepo() *MockRepo {
	return &MockRepo{
		users:      &MockUsers{},
		activities: &MockActivities{},
	}
}

func (m *MockRepo) Validate() error { return nil }

func (m *MockRepo) MustValidate() {}

func (m *MockRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepo) Users() auth.Users { return m.users }

func (m *MockRepo) LoginActivities() auth.LoginActivities { return m.activities }
