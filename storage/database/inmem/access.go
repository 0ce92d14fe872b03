package inmemdb

import (
	"context"
	"sort"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
)

type accessRepository struct {
	db *DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *DB) *accessRepository {
	return &accessRepository{db: db}
}

// Owns ignores lock: InTx already keeps ownership changes out until the transaction ends.
func (repo *accessRepository) Owns(_ context.Context, accountID int, ref access.Ref, _ bool, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.owns(accountID, ref.Kind, ref.ID), nil
}

func (repo *accessRepository) AddOwner(_ context.Context, accountID, studentID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.txMu.Lock()
	defer repo.db.txMu.Unlock()
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.accounts[accountID]; !ok {
		return false, access.ErrNotFound
	}
	if _, ok := repo.db.students[studentID]; !ok {
		return false, access.ErrNotFound
	}
	key := ownerKey{accountID: accountID, studentID: studentID}
	if _, ok := repo.db.owners[key]; ok {
		return false, nil
	}
	repo.db.owners[key] = struct{}{}
	return true, nil
}

func (repo *accessRepository) RemoveOwner(_ context.Context, accountID, studentID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.txMu.Lock()
	defer repo.db.txMu.Unlock()
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := ownerKey{accountID: accountID, studentID: studentID}
	if _, ok := repo.db.owners[key]; !ok {
		return false, nil
	}
	delete(repo.db.owners, key)
	return true, nil
}

func (repo *accessRepository) ListOwners(_ context.Context, studentID int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids []int
	for key := range repo.db.owners {
		if key.studentID == studentID {
			ids = append(ids, key.accountID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
