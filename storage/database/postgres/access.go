package pgrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
)

// studentOf selects the student a resource belongs to; $2 is the resource ID.
var studentOf = map[access.Kind]string{
	access.KindStudent: `SELECT $2::int`,
	access.KindClass:   `SELECT c.student_id FROM classes c WHERE c.id = $2`,
	access.KindSubmission: `SELECT c.student_id FROM submissions s
		JOIN classes c ON c.id = s.class_id WHERE s.id = $2`,
	access.KindProject: `SELECT c.student_id FROM projects p
		JOIN submissions s ON s.id = p.submission_id
		JOIN classes c ON c.id = s.class_id WHERE p.id = $2`,
	access.KindQuestion: `SELECT c.student_id FROM questions q
		JOIN submissions s ON s.id = q.submission_id
		JOIN classes c ON c.id = s.class_id WHERE q.id = $2`,
}

type accessRepository struct {
	baseRepo
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(exec core.DBExecutor) *accessRepository {
	return &accessRepository{baseRepo{exec: exec}}
}

func (repo accessRepository) Owns(ctx context.Context, accountID int, ref access.Ref, lock bool, exec ...core.DBExecutor) (bool, error) {
	sub, ok := studentOf[ref.Kind]
	if !ok {
		return false, access.ErrUnknownKind
	}
	q := `SELECT 1 FROM student_owners so WHERE so.account_id = $1 AND so.student_id = (` + sub + `) LIMIT 1`
	if lock {
		// a concurrent removal of this grant waits for the caller's transaction
		q += ` FOR SHARE OF so`
	}

	var one int
	if err := repo.getExec(exec).GetContext(ctx, &one, q, accountID, ref.ID); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "checking ownership")
	}
	return true, nil
}

func (repo accessRepository) AddOwner(ctx context.Context, accountID, studentID int, exec ...core.DBExecutor) (bool, error) {
	res, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO student_owners (account_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		accountID, studentID)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return false, access.ErrNotFound
		}
		return false, errors.Wrap(err, "adding owner")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo accessRepository) RemoveOwner(ctx context.Context, accountID, studentID int, exec ...core.DBExecutor) (bool, error) {
	res, err := repo.getExec(exec).ExecContext(ctx,
		`DELETE FROM student_owners WHERE account_id = $1 AND student_id = $2`, accountID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "removing owner")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo accessRepository) ListOwners(ctx context.Context, studentID int, exec ...core.DBExecutor) ([]int, error) {
	var ids []int
	err := repo.getExec(exec).SelectContext(ctx, &ids,
		`SELECT account_id FROM student_owners WHERE student_id = $1 ORDER BY account_id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing owners")
	}
	return ids, nil
}
