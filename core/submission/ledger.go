// Package submission keeps the append-only record of student work.
package submission

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

// Work types
const (
	TypeClasswork = "classwork"
	TypeHomework  = "homework"
	TypeProject   = "project"
)

var (
	ErrNotFound        = errors.New("submission not found")
	ErrInvalidWorkType = errors.New("invalid work type")

	NowFunc = time.Now // mockable
)

func ValidWorkType(t string) bool {
	switch t {
	case TypeClasswork, TypeHomework, TypeProject:
		return true
	}
	return false
}

// Submission is immutable once recorded. "Current" work is the highest ID for a class and work type.
type Submission struct {
	ID        int       `json:"id" db:"id"`
	ClassID   int       `json:"class_id" db:"class_id"`
	AccountID int       `json:"account_id" db:"account_id"`
	WorkType  string    `json:"work_type" db:"work_type"`
	Work      string    `json:"work" db:"work"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewSubmission struct {
	ClassID  int    `json:"class_id" validate:"required,min=1"`
	WorkType string `json:"-" validate:"required,oneof=classwork homework project"`
	Work     string `json:"work" validate:"required,notblank"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	return validate.Struct(ns)
}

type (
	Repository interface {
		// InsertOwnedSubmission inserts the submission only if the account owns the class's student,
		// in a single statement. ok is false when nothing was inserted.
		InsertOwnedSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (s Submission, ok bool, err error)
		// LatestSubmission orders by ID, never by timestamp.
		LatestSubmission(ctx context.Context, classID int, workType string, exec ...core.DBExecutor) (Submission, error)
	}

	Ledger struct {
		repo Repository
	}
)

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Submit records work for a class the account owns. Anything else is core.ErrUnauthorized.
func (l *Ledger) Submit(ctx context.Context, accountID int, ns NewSubmission) (Submission, error) {
	if !ValidWorkType(ns.WorkType) {
		return Submission{}, ErrInvalidWorkType
	}
	sub, ok, err := l.repo.InsertOwnedSubmission(ctx, Submission{
		ClassID:   ns.ClassID,
		AccountID: accountID,
		WorkType:  ns.WorkType,
		Work:      ns.Work,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		return Submission{}, errors.Wrap(err, "inserting submission")
	}
	if !ok {
		return Submission{}, core.ErrUnauthorized
	}
	return sub, nil
}

// Latest returns the current submission of a class for a work type, or ErrNotFound.
func (l *Ledger) Latest(ctx context.Context, classID int, workType string, exec ...core.DBExecutor) (Submission, error) {
	if !ValidWorkType(workType) {
		return Submission{}, ErrInvalidWorkType
	}
	return l.repo.LatestSubmission(ctx, classID, workType, exec...)
}
