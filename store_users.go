package admission

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the persistence surface for membership accounts. It satisfies
// IdentityStore and adds the write operations the callback flow needs.
type Users interface {
	IdentityStore

	ByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	ByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	TrackLogin(ctx context.Context, user *User) error
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

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
	})

	return &users{
		repo: repo,
		db:   db,
	}
}

func (a *users) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.ByIDTx(ctx, a.db, id)
}

func (a *users) ByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ByEmail(ctx context.Context, email string) (*User, error) {
	return a.ByEmailTx(ctx, a.db, email)
}

func (a *users) ByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetOrCreate(ctx context.Context, record *User) (*User, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *users) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	user, err := a.ByEmailTx(ctx, tx, record.Email)
	if err == nil {
		return user, nil
	}

	if !IsIdentityNotFoundError(err) {
		return nil, err
	}

	prepareUserDefaults(record)
	return a.repo.CreateTx(ctx, tx, record)
}

func (a *users) TrackLogin(ctx context.Context, user *User) error {
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "users" AS "usr"
		SET "loggedin_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if len(record.Roles) == 0 {
		record.Roles = []string{RoleMember}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
