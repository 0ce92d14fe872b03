// Package forum holds questions asked about submitted work and the comments answering them.
package forum

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

var NowFunc = time.Now // mockable

type Question struct {
	ID             int       `json:"id"`
	SubmissionID   int       `json:"submission_id"`
	ClassID        int       `json:"class_id"`
	ClassName      string    `json:"class_name"`
	StudentName    string    `json:"student_name"`
	WorkType       string    `json:"work_type"`
	Work           string    `json:"work"`
	AccountID      int       `json:"-"`
	Asker          string    `json:"asker"`
	Error          string    `json:"error"`
	Interpretation string    `json:"interpretation"`
	Question       string    `json:"question"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	Comments       []Comment `json:"comments"`
}

type Comment struct {
	ID         int       `json:"id"`
	QuestionID int       `json:"-"`
	AccountID  int       `json:"-"` // 0 when not attributed
	Author     string    `json:"author,omitempty"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type NewQuestion struct {
	ClassID        int    `json:"class_id" validate:"required,min=1"`
	WorkType       string `json:"work_type" validate:"required,oneof=classwork homework project"`
	Error          string `json:"error"`
	Interpretation string `json:"interpretation"`
	Question       string `json:"question" validate:"required,notblank"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Error = core.CleanString(nq.Error)
	nq.Interpretation = core.CleanString(nq.Interpretation)
	nq.Question = core.CleanString(nq.Question)
	return validate.Struct(nq)
}

type NewComment struct {
	QuestionID int    `json:"question_id" validate:"required,min=1"`
	Comment    string `json:"comment" validate:"required,notblank"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Comment = core.CleanString(nc.Comment)
	return validate.Struct(nc)
}

type (
	Repository interface {
		// InsertOwnedQuestion anchors the question to the latest submission of the class and work type,
		// only if the account owns the class's student. ok is false when nothing was inserted.
		InsertOwnedQuestion(ctx context.Context, accountID int, nq NewQuestion, now time.Time, exec ...core.DBExecutor) (q Question, ok bool, err error)
		// ListOwnedQuestions returns questions on classes of students the account owns, newest first.
		ListOwnedQuestions(ctx context.Context, accountID int, exec ...core.DBExecutor) ([]Question, error)
		InsertOwnedComment(ctx context.Context, accountID int, nc NewComment, now time.Time, exec ...core.DBExecutor) (c Comment, ok bool, err error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Ask records a question about the current work of a class.
// A class the account does not own, or one with no submission yet, gives core.ErrUnauthorized.
func (svc *Service) Ask(ctx context.Context, accountID int, nq NewQuestion) (Question, error) {
	q, ok, err := svc.repo.InsertOwnedQuestion(ctx, accountID, nq, NowFunc().UTC())
	if err != nil {
		return Question{}, errors.Wrap(err, "inserting question")
	}
	if !ok {
		return Question{}, core.ErrUnauthorized
	}
	q.Comments = []Comment{}
	return q, nil
}

func (svc *Service) List(ctx context.Context, accountID int) ([]Question, error) {
	questions, err := svc.repo.ListOwnedQuestions(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "listing questions")
	}
	if questions == nil {
		questions = []Question{}
	}
	for i := range questions {
		if questions[i].Comments == nil {
			questions[i].Comments = []Comment{}
		}
	}
	return questions, nil
}

// Comment answers a question on a class the account owns.
func (svc *Service) Comment(ctx context.Context, accountID int, nc NewComment) (Comment, error) {
	c, ok, err := svc.repo.InsertOwnedComment(ctx, accountID, nc, NowFunc().UTC())
	if err != nil {
		return Comment{}, errors.Wrap(err, "inserting comment")
	}
	if !ok {
		return Comment{}, core.ErrUnauthorized
	}
	return c, nil
}
