package auth

import (
	"context"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LoginActivities is the append-only audit trail. Records are written once
// and never mutated; deletion happens only through retention policy or a
// cascading user delete, neither of which lives in this package.
type LoginActivities interface {
	repository.Repository[*LoginActivity]

	Append(ctx context.Context, record *LoginActivity) error
	AppendTx(ctx context.Context, tx bun.IDB, record *LoginActivity) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*LoginActivity, error)
}

type loginActivities struct {
	repository.Repository[*LoginActivity]
	db *bun.DB
}

var _ LoginActivities = (*loginActivities)(nil)

func NewLoginActivitiesRepository(db *bun.DB) LoginActivities {
	repo := repository.NewRepository[*LoginActivity](db, repository.ModelHandlers[*LoginActivity]{
		NewRecord: func() *LoginActivity { return &LoginActivity{} },
		GetID: func(r *LoginActivity) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *LoginActivity, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	return &loginActivities{
		Repository: repo,
		db:         db,
	}
}

func (a *loginActivities) Append(ctx context.Context, record *LoginActivity) error {
	return a.AppendTx(ctx, a.db, record)
}

func (a *loginActivities) AppendTx(ctx context.Context, tx bun.IDB, record *LoginActivity) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := a.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return TransientError(err, "failed to append login activity")
	}
	return nil
}

func (a *loginActivities) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*LoginActivity, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*LoginActivity
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, TransientError(err, "failed to list login activity")
	}

	return records, nil
}
