package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	LoginActivities() LoginActivities
}

type mngr struct {
	db              *bun.DB
	users           Users
	loginActivities LoginActivities
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:              db,
		users:           NewUsersRepository(db),
		loginActivities: NewLoginActivitiesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.loginActivities == nil {
		return errors.New("repository loginActivities should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) LoginActivities() LoginActivities {
	return m.loginActivities
}
