package pgrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/submission"
)

type submissionRepository struct {
	baseRepo
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) *submissionRepository {
	return &submissionRepository{baseRepo{exec: exec}}
}

func (repo submissionRepository) InsertOwnedSubmission(ctx context.Context, sub submission.Submission, exec ...core.DBExecutor) (submission.Submission, bool, error) {
	q := `
INSERT INTO submissions (class_id, account_id, work_type, work, created_at)
SELECT c.id, $2, $3, $4, $5
FROM classes c
WHERE c.id = $1 AND ` + ownedStudent("c.student_id", "$2") + `
RETURNING id, class_id, account_id, work_type, work, created_at`

	var s submission.Submission
	err := repo.getExec(exec).GetContext(ctx, &s, q, sub.ClassID, sub.AccountID, sub.WorkType, sub.Work, sub.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return submission.Submission{}, false, nil
		}
		return submission.Submission{}, false, errors.Wrap(err, "inserting submission")
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, true, nil
}

func (repo submissionRepository) LatestSubmission(ctx context.Context, classID int, workType string, exec ...core.DBExecutor) (submission.Submission, error) {
	const q = `
SELECT id, class_id, account_id, work_type, work, created_at
FROM submissions
WHERE class_id = $1 AND work_type = $2
ORDER BY id DESC
LIMIT 1`

	var s submission.Submission
	if err := repo.getExec(exec).GetContext(ctx, &s, q, classID, workType); err != nil {
		if isNoRows(err) {
			return submission.Submission{}, submission.ErrNotFound
		}
		return submission.Submission{}, errors.Wrap(err, "getting latest submission")
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}
