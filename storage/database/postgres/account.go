package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
)

type accountRow struct {
	ID           int         `db:"id"`
	Username     string      `db:"username"`
	Name         string      `db:"name"`
	Email        null.String `db:"email"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r accountRow) account() account.Account {
	return account.Account{
		ID:           r.ID,
		Username:     r.Username,
		Name:         r.Name,
		Email:        r.Email.String,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type accountRepository struct {
	baseRepo
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(exec core.DBExecutor) *accountRepository {
	return &accountRepository{baseRepo{exec: exec}}
}

func (repo accountRepository) CreateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	const q = `
INSERT INTO accounts (username, name, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	email := null.NewString(acc.Email, acc.Email != "")
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		acc.Username, acc.Name, email, acc.PasswordHash, acc.CreatedAt, acc.UpdatedAt).Scan(&acc.ID)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return account.Account{}, account.ErrUsernameExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (repo accountRepository) GetAccount(ctx context.Context, filter account.GetFilter, exec ...core.DBExecutor) (account.Account, error) {
	query := psql.
		Select("id", "username", "name", "email", "password_hash", "created_at", "updated_at").
		From("accounts")
	switch {
	case filter.ID != 0:
		query = query.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		query = query.Where(sq.Eq{"username": filter.Username})
	default:
		return account.Account{}, account.ErrNotFound
	}

	q, args, err := query.ToSql()
	if err != nil {
		return account.Account{}, errors.Wrap(err, "building account query")
	}
	var row accountRow
	if err := repo.getExec(exec).GetContext(ctx, &row, q, args...); err != nil {
		if isNoRows(err) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "getting account")
	}
	return row.account(), nil
}

func (repo accountRepository) UsernameExists(ctx context.Context, username string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := repo.getExec(exec).GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username)
	return exists, err
}

func (repo accountRepository) update(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) error {
	res, err := exec.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (repo accountRepository) UpdatePassword(ctx context.Context, id int, hash []byte, updatedAt time.Time, exec ...core.DBExecutor) error {
	return repo.update(ctx, repo.getExec(exec),
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, updatedAt)
}

func (repo accountRepository) UpdateEmail(ctx context.Context, id int, email string, updatedAt time.Time, exec ...core.DBExecutor) error {
	return repo.update(ctx, repo.getExec(exec),
		`UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1`, id, null.NewString(email, email != ""), updatedAt)
}
