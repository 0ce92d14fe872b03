package pgrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/session"
)

type tokenRow struct {
	Value     string    `db:"token"`
	AccountID int       `db:"account_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type sessionRepository struct {
	baseRepo
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) *sessionRepository {
	return &sessionRepository{baseRepo{exec: exec}}
}

func (repo sessionRepository) CreateToken(ctx context.Context, tok session.Token, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO tokens (token, account_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		tok.Value, tok.AccountID, tok.ExpiresAt, tok.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "inserting token")
	}
	return nil
}

func (repo sessionRepository) GetLiveToken(ctx context.Context, value string, now time.Time, exec ...core.DBExecutor) (session.Token, error) {
	var row tokenRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT token, account_id, expires_at, created_at FROM tokens WHERE token = $1 AND expires_at > $2`,
		value, now)
	if err != nil {
		if isNoRows(err) {
			return session.Token{}, session.ErrNotFound
		}
		return session.Token{}, errors.Wrap(err, "getting token")
	}
	return session.Token{
		Value:     row.Value,
		AccountID: row.AccountID,
		ExpiresAt: row.ExpiresAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (repo sessionRepository) ExpireTokens(ctx context.Context, accountID int, value string, now time.Time, exec ...core.DBExecutor) (int64, error) {
	q := `UPDATE tokens SET expires_at = $2 WHERE account_id = $1 AND expires_at > $2`
	args := []interface{}{accountID, now}
	if value != "" {
		q += ` AND token = $3`
		args = append(args, value)
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "expiring tokens")
	}
	return rowsAffected(res)
}
