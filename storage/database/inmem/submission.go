package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/forum"
	"github.com/codeabode/backend/core/submission"
)

type submissionRepository struct {
	db *DB
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo *submissionRepository) InsertOwnedSubmission(_ context.Context, sub submission.Submission, _ ...core.DBExecutor) (submission.Submission, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.db.owns(sub.AccountID, access.KindClass, sub.ClassID) {
		return submission.Submission{}, false, nil
	}
	sub.ID = repo.db.nextID("submissions")
	repo.db.submissions = append(repo.db.submissions, sub)
	return sub, true, nil
}

func (repo *submissionRepository) LatestSubmission(_ context.Context, classID int, workType string, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.latest(classID, workType); ok {
		return s, nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

type forumRepository struct {
	db *DB
}

var _ forum.Repository = (*forumRepository)(nil) // interface compliance check

func NewForumRepository(db *DB) *forumRepository {
	return &forumRepository{db: db}
}

// fill must be called with mu held.
func (repo *forumRepository) fill(q forum.Question) forum.Question {
	if s, ok := repo.db.submission(q.SubmissionID); ok {
		q.ClassID = s.ClassID
		q.WorkType = s.WorkType
		q.Work = s.Work
		if c, ok := repo.db.classes[s.ClassID]; ok {
			q.ClassName = c.Name
			if st, ok := repo.db.students[c.StudentID]; ok {
				q.StudentName = st.Name
			}
		}
	}
	q.Asker = repo.db.username(q.AccountID)
	q.Comments = nil
	for _, c := range repo.db.comments {
		if c.QuestionID == q.ID {
			c.Author = repo.db.username(c.AccountID)
			q.Comments = append(q.Comments, c)
		}
	}
	return q
}

func (repo *forumRepository) InsertOwnedQuestion(_ context.Context, accountID int, nq forum.NewQuestion, now time.Time, _ ...core.DBExecutor) (forum.Question, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.db.owns(accountID, access.KindClass, nq.ClassID) {
		return forum.Question{}, false, nil
	}
	sub, ok := repo.db.latest(nq.ClassID, nq.WorkType)
	if !ok {
		return forum.Question{}, false, nil
	}
	q := forum.Question{
		ID:             repo.db.nextID("questions"),
		SubmissionID:   sub.ID,
		AccountID:      accountID,
		Error:          nq.Error,
		Interpretation: nq.Interpretation,
		Question:       nq.Question,
		CreatedAt:      now,
	}
	stored := q
	repo.db.questions[q.ID] = &stored
	return repo.fill(q), true, nil
}

func (repo *forumRepository) ListOwnedQuestions(_ context.Context, accountID int, _ ...core.DBExecutor) ([]forum.Question, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var questions []forum.Question
	for _, q := range repo.db.questions {
		if repo.db.owns(accountID, access.KindQuestion, q.ID) {
			questions = append(questions, repo.fill(*q))
		}
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID > questions[j].ID })
	return questions, nil
}

func (repo *forumRepository) InsertOwnedComment(_ context.Context, accountID int, nc forum.NewComment, now time.Time, _ ...core.DBExecutor) (forum.Comment, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.db.owns(accountID, access.KindQuestion, nc.QuestionID) {
		return forum.Comment{}, false, nil
	}
	c := forum.Comment{
		ID:         repo.db.nextID("comments"),
		QuestionID: nc.QuestionID,
		AccountID:  accountID,
		Comment:    strings.TrimSpace(nc.Comment),
		CreatedAt:  now,
	}
	repo.db.comments = append(repo.db.comments, c)
	c.Author = repo.db.username(accountID)
	return c, true, nil
}
