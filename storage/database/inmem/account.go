package inmemdb

import (
	"context"
	"time"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/session"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, a := range repo.db.accounts {
		if a.Username == acc.Username {
			return account.Account{}, account.ErrUsernameExists
		}
	}
	acc.ID = repo.db.nextID("accounts")
	stored := acc
	repo.db.accounts[acc.ID] = &stored
	return acc, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != 0 {
		if acc, ok := repo.db.accounts[filter.ID]; ok {
			return *acc, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	for _, acc := range repo.db.accounts {
		if filter.Username != "" && acc.Username == filter.Username {
			return *acc, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UsernameExists(_ context.Context, username string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, acc := range repo.db.accounts {
		if acc.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (repo *accountRepository) UpdatePassword(_ context.Context, id int, hash []byte, updatedAt time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	acc, ok := repo.db.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	acc.PasswordHash = hash
	acc.UpdatedAt = updatedAt
	return nil
}

func (repo *accountRepository) UpdateEmail(_ context.Context, id int, email string, updatedAt time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	acc, ok := repo.db.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	acc.Email = email
	acc.UpdatedAt = updatedAt
	return nil
}

type sessionRepository struct {
	db *DB
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(db *DB) *sessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateToken(_ context.Context, tok session.Token, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.tokens[tok.Value] = tok
	return nil
}

func (repo *sessionRepository) GetLiveToken(_ context.Context, value string, now time.Time, _ ...core.DBExecutor) (session.Token, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tok, ok := repo.db.tokens[value]
	if !ok || !tok.ValidAt(now) {
		return session.Token{}, session.ErrNotFound
	}
	return tok, nil
}

func (repo *sessionRepository) ExpireTokens(_ context.Context, accountID int, value string, now time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int64
	for v, tok := range repo.db.tokens {
		if tok.AccountID != accountID || !tok.ValidAt(now) || (value != "" && v != value) {
			continue
		}
		tok.ExpiresAt = now
		repo.db.tokens[v] = tok
		n++
	}
	return n, nil
}
