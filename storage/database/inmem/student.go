package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) ListOwnedStudents(_ context.Context, accountID int, _ ...core.DBExecutor) ([]student.Summary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var students []student.Summary
	for key := range repo.db.owners {
		if key.accountID != accountID {
			continue
		}
		if s, ok := repo.db.students[key.studentID]; ok {
			students = append(students, student.Summary{ID: s.ID, Name: s.Name})
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	return students, nil
}

func (repo *studentRepository) ListStudents(_ context.Context, _ ...core.DBExecutor) ([]student.Listing, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	listings := make([]student.Listing, 0, len(repo.db.students))
	for _, s := range repo.db.students {
		owners := []string{}
		for key := range repo.db.owners {
			if key.studentID == s.ID {
				owners = append(owners, repo.db.username(key.accountID))
			}
		}
		sort.Strings(owners)
		listings = append(listings, student.Listing{Summary: student.Summary{ID: s.ID, Name: s.Name}, Owners: owners})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ID < listings[j].ID })
	return listings, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, id int, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	s, ok := repo.db.students[id]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	res := *s
	res.FutureConcepts = append([]string{}, s.FutureConcepts...)
	return res, nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = repo.db.nextID("students")
	if s.FutureConcepts == nil {
		s.FutureConcepts = []string{}
	}
	s.Classes = nil
	stored := s
	repo.db.students[s.ID] = &stored
	return s, nil
}

// withSubmissions must be called with mu held.
func (repo *studentRepository) withSubmissions(c student.Class) student.Class {
	if s, ok := repo.db.latest(c.ID, submission.TypeClasswork); ok {
		c.ClassworkSubmission = s.Work
	}
	if s, ok := repo.db.latest(c.ID, submission.TypeHomework); ok {
		c.HomeworkSubmission = s.Work
	}
	return c
}

func (repo *studentRepository) ListClasses(_ context.Context, studentID int, _ ...core.DBExecutor) ([]student.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := []student.Class{}
	for _, c := range repo.db.classes {
		if c.StudentID == studentID {
			classes = append(classes, repo.withSubmissions(*c))
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID > classes[j].ID })
	return classes, nil
}

func (repo *studentRepository) GetClass(_ context.Context, id int, _ ...core.DBExecutor) (student.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	c, ok := repo.db.classes[id]
	if !ok {
		return student.Class{}, student.ErrClassNotFound
	}
	return repo.withSubmissions(*c), nil
}

func (repo *studentRepository) ApplyCurriculum(_ context.Context, studentID int, c student.Curriculum, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s, ok := repo.db.students[studentID]
	if !ok {
		return student.ErrNotFound
	}
	s.CurrentLevel = c.CurrentLevel
	s.FinalGoal = c.FinalGoal
	s.FutureConcepts = append([]string{}, c.FutureConcepts...)
	if c.Notes != "" {
		s.Notes = c.Notes
	}

	for id, cls := range repo.db.classes {
		if cls.StudentID != studentID || student.IsTaught(cls.Status) {
			continue
		}
		if repo.hasSubmissions(id) {
			continue
		}
		delete(repo.db.classes, id)
	}

	for _, pc := range c.Classes {
		id := repo.db.nextID("classes")
		repo.db.classes[id] = &student.Class{
			ID:             id,
			StudentID:      studentID,
			Status:         pc.Status,
			Name:           pc.Name,
			Relevance:      pc.Relevance,
			Methods:        append([]string{}, pc.Methods...),
			StretchMethods: pc.StretchMethods,
			SkillsTested:   pc.SkillsTested,
			Description:    pc.Description,
		}
	}
	return nil
}

// hasSubmissions must be called with mu held.
func (repo *studentRepository) hasSubmissions(classID int) bool {
	for _, s := range repo.db.submissions {
		if s.ClassID == classID {
			return true
		}
	}
	return false
}

func (repo *studentRepository) SetClassWork(_ context.Context, classID int, kind, text, notes string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c, ok := repo.db.classes[classID]
	if !ok {
		return student.ErrClassNotFound
	}
	switch kind {
	case student.WorkClasswork:
		c.Classwork, c.Notes = text, notes
	case student.WorkHomework:
		c.Homework, c.HomeworkNotes = text, notes
	default:
		return errors.Errorf("unknown class work kind %q", kind)
	}
	return nil
}
