package student

import (
	"context"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
)

var (
	ErrNotFound      = errors.New("student not found")
	ErrClassNotFound = errors.New("class not found")
)

type (
	Repository interface {
		// ListOwnedStudents returns the students owned by the account, in a single query.
		ListOwnedStudents(ctx context.Context, accountID int, exec ...core.DBExecutor) ([]Summary, error)
		ListStudents(ctx context.Context, exec ...core.DBExecutor) ([]Listing, error)
		GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (Student, error)
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		// ListClasses returns the student's classes, newest first, with their latest submissions.
		ListClasses(ctx context.Context, studentID int, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (Class, error)
		// ApplyCurriculum updates the student's plan and replaces its untaught classes.
		// Classes that already received submissions are kept.
		ApplyCurriculum(ctx context.Context, studentID int, c Curriculum, exec ...core.DBExecutor) error
		// SetClassWork stores generated material of the given kind with the tutor notes it was made from.
		SetClassWork(ctx context.Context, classID int, kind, text, notes string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo Repository
		gate *access.Gate
	}
)

func NewService(repo Repository, gate *access.Gate) *Service {
	return &Service{repo: repo, gate: gate}
}

func (svc *Service) ListOwned(ctx context.Context, accountID int) ([]Summary, error) {
	students, err := svc.repo.ListOwnedStudents(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "listing owned students")
	}
	if students == nil {
		students = []Summary{}
	}
	return students, nil
}

// GetOwned returns a student with its classes, as one consistent read under the ownership guard.
func (svc *Service) GetOwned(ctx context.Context, accountID, id int) (Student, error) {
	var s Student
	err := svc.gate.Guard(ctx, accountID, access.Student(id), func(exec core.DBExecutor) error {
		var err error
		if s, err = svc.repo.GetStudent(ctx, id, exec); err != nil {
			return errors.Wrap(err, "getting student")
		}
		if s.Classes, err = svc.repo.ListClasses(ctx, id, exec); err != nil {
			return errors.Wrap(err, "listing classes")
		}
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	if s.Classes == nil {
		s.Classes = []Class{}
	}
	if s.FutureConcepts == nil {
		s.FutureConcepts = []string{}
	}
	return s, nil
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	return svc.repo.CreateStudent(ctx, Student{
		Name:           ns.Name,
		Age:            ns.Age,
		CurrentLevel:   ns.Level,
		FinalGoal:      ns.FinalGoal,
		Notes:          ns.Notes,
		FutureConcepts: []string{},
	})
}

func (svc *Service) List(ctx context.Context) ([]Listing, error) {
	return svc.repo.ListStudents(ctx)
}
