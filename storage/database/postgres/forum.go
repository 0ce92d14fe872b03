package pgrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/forum"
)

type questionRow struct {
	ID             int       `db:"id"`
	SubmissionID   int       `db:"submission_id"`
	ClassID        int       `db:"class_id"`
	ClassName      string    `db:"class_name"`
	StudentName    string    `db:"student_name"`
	WorkType       string    `db:"work_type"`
	Work           string    `db:"work"`
	AccountID      int       `db:"account_id"`
	Asker          string    `db:"asker"`
	Error          string    `db:"error"`
	Interpretation string    `db:"interpretation"`
	Question       string    `db:"question"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r questionRow) question() forum.Question {
	return forum.Question{
		ID:             r.ID,
		SubmissionID:   r.SubmissionID,
		ClassID:        r.ClassID,
		ClassName:      r.ClassName,
		StudentName:    r.StudentName,
		WorkType:       r.WorkType,
		Work:           r.Work,
		AccountID:      r.AccountID,
		Asker:          r.Asker,
		Error:          r.Error,
		Interpretation: r.Interpretation,
		Question:       r.Question,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type commentRow struct {
	ID         int       `db:"id"`
	QuestionID int       `db:"question_id"`
	AccountID  int       `db:"account_id"`
	Author     string    `db:"author"`
	Comment    string    `db:"comment"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r commentRow) comment() forum.Comment {
	return forum.Comment{
		ID:         r.ID,
		QuestionID: r.QuestionID,
		AccountID:  r.AccountID,
		Author:     r.Author,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

const questionSelect = `
SELECT q.id, q.submission_id, s.class_id, c.name AS class_name, st.name AS student_name,
       s.work_type, s.work, q.account_id, a.username AS asker,
       q.error, q.interpretation, q.question, q.created_at
FROM questions q
JOIN submissions s ON s.id = q.submission_id
JOIN classes c ON c.id = s.class_id
JOIN students st ON st.id = c.student_id
JOIN accounts a ON a.id = q.account_id`

type forumRepository struct {
	baseRepo
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(exec core.DBExecutor) *forumRepository {
	return &forumRepository{baseRepo{exec: exec}}
}

func (repo forumRepository) InsertOwnedQuestion(ctx context.Context, accountID int, nq forum.NewQuestion, now time.Time, exec ...core.DBExecutor) (forum.Question, bool, error) {
	q := `
WITH latest AS (
    SELECT s.id
    FROM submissions s
    JOIN classes c ON c.id = s.class_id
    WHERE s.class_id = $1 AND s.work_type = $2 AND ` + ownedStudent("c.student_id", "$3") + `
    ORDER BY s.id DESC
    LIMIT 1
)
INSERT INTO questions (submission_id, account_id, error, interpretation, question, created_at)
SELECT id, $3, $4, $5, $6, $7 FROM latest
RETURNING id`

	ex := repo.getExec(exec)
	var id int
	err := ex.GetContext(ctx, &id, q, nq.ClassID, nq.WorkType, accountID, nq.Error, nq.Interpretation, nq.Question, now)
	if err != nil {
		if isNoRows(err) {
			return forum.Question{}, false, nil
		}
		return forum.Question{}, false, errors.Wrap(err, "inserting question")
	}

	var row questionRow
	if err := ex.GetContext(ctx, &row, questionSelect+` WHERE q.id = $1`, id); err != nil {
		return forum.Question{}, false, errors.Wrap(err, "reading question back")
	}
	return row.question(), true, nil
}

func (repo forumRepository) ListOwnedQuestions(ctx context.Context, accountID int, exec ...core.DBExecutor) ([]forum.Question, error) {
	ex := repo.getExec(exec)

	var rows []questionRow
	q := questionSelect + ` WHERE ` + ownedStudent("c.student_id", "$1") + ` ORDER BY q.id DESC`
	if err := ex.SelectContext(ctx, &rows, q, accountID); err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	questions := make([]forum.Question, 0, len(rows))
	byID := make(map[int]int, len(rows))
	ids := make([]int64, 0, len(rows))
	for i, r := range rows {
		questions = append(questions, r.question())
		byID[r.ID] = i
		ids = append(ids, int64(r.ID))
	}

	var comments []commentRow
	err := ex.SelectContext(ctx, &comments, `
SELECT cm.id, cm.question_id, COALESCE(cm.account_id, 0) AS account_id, COALESCE(a.username, '') AS author,
       cm.comment, cm.created_at
FROM comments cm
LEFT JOIN accounts a ON a.id = cm.account_id
WHERE cm.question_id = ANY($1)
ORDER BY cm.id`, pq.Int64Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "selecting comments")
	}
	for _, c := range comments {
		i := byID[c.QuestionID]
		questions[i].Comments = append(questions[i].Comments, c.comment())
	}
	return questions, nil
}

func (repo forumRepository) InsertOwnedComment(ctx context.Context, accountID int, nc forum.NewComment, now time.Time, exec ...core.DBExecutor) (forum.Comment, bool, error) {
	q := `
WITH ins AS (
    INSERT INTO comments (question_id, account_id, comment, created_at)
    SELECT q.id, $2, $3, $4
    FROM questions q
    JOIN submissions s ON s.id = q.submission_id
    JOIN classes c ON c.id = s.class_id
    WHERE q.id = $1 AND ` + ownedStudent("c.student_id", "$2") + `
    RETURNING id, question_id, account_id, comment, created_at
)
SELECT ins.id, ins.question_id, ins.account_id, a.username AS author, ins.comment, ins.created_at
FROM ins
JOIN accounts a ON a.id = ins.account_id`

	var row commentRow
	if err := repo.getExec(exec).GetContext(ctx, &row, q, nc.QuestionID, accountID, nc.Comment, now); err != nil {
		if isNoRows(err) {
			return forum.Comment{}, false, nil
		}
		return forum.Comment{}, false, errors.Wrap(err, "inserting comment")
	}
	return row.comment(), true, nil
}
