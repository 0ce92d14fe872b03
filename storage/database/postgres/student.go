package pgrepos

import (
	"context"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/student"
)

type studentRow struct {
	ID             int            `db:"id"`
	Name           string         `db:"name"`
	Age            int            `db:"age"`
	CurrentLevel   string         `db:"current_level"`
	FinalGoal      string         `db:"final_goal"`
	FutureConcepts pq.StringArray `db:"future_concepts"`
	Notes          null.String    `db:"notes"`
}

type classRow struct {
	ID                  int            `db:"id"`
	StudentID           int            `db:"student_id"`
	Status              string         `db:"status"`
	Name                string         `db:"name"`
	Relevance           null.String    `db:"relevance"`
	Methods             pq.StringArray `db:"methods"`
	StretchMethods      pq.StringArray `db:"stretch_methods"`
	SkillsTested        pq.StringArray `db:"skills_tested"`
	Description         string         `db:"description"`
	Classwork           null.String    `db:"classwork"`
	Notes               null.String    `db:"notes"`
	Homework            null.String    `db:"hw"`
	HomeworkNotes       null.String    `db:"hw_notes"`
	ClassworkSubmission null.String    `db:"classwork_submission"`
	HomeworkSubmission  null.String    `db:"homework_submission"`
}

func (r classRow) class() student.Class {
	return student.Class{
		ID:                  r.ID,
		StudentID:           r.StudentID,
		Status:              r.Status,
		Name:                r.Name,
		Relevance:           r.Relevance.String,
		Methods:             []string(r.Methods),
		StretchMethods:      []string(r.StretchMethods),
		SkillsTested:        []string(r.SkillsTested),
		Description:         r.Description,
		Classwork:           r.Classwork.String,
		Notes:               r.Notes.String,
		Homework:            r.Homework.String,
		HomeworkNotes:       r.HomeworkNotes.String,
		ClassworkSubmission: r.ClassworkSubmission.String,
		HomeworkSubmission:  r.HomeworkSubmission.String,
	}
}

const classSelect = `
SELECT c.id, c.student_id, c.status, c.name, c.relevance, c.methods, c.stretch_methods, c.skills_tested,
       c.description, c.classwork, c.notes, c.hw, c.hw_notes,
       (SELECT s.work FROM submissions s WHERE s.class_id = c.id AND s.work_type = 'classwork'
        ORDER BY s.id DESC LIMIT 1) AS classwork_submission,
       (SELECT s.work FROM submissions s WHERE s.class_id = c.id AND s.work_type = 'homework'
        ORDER BY s.id DESC LIMIT 1) AS homework_submission
FROM classes c`

type studentRepository struct {
	baseRepo
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{baseRepo{exec: exec}}
}

func (repo studentRepository) ListOwnedStudents(ctx context.Context, accountID int, exec ...core.DBExecutor) ([]student.Summary, error) {
	const q = `
SELECT s.id, s.name
FROM students s
JOIN student_owners so ON so.student_id = s.id
WHERE so.account_id = $1
ORDER BY s.id`

	var students []student.Summary
	if err := repo.getExec(exec).SelectContext(ctx, &students, q, accountID); err != nil {
		return nil, errors.Wrap(err, "selecting owned students")
	}
	return students, nil
}

func (repo studentRepository) ListStudents(ctx context.Context, exec ...core.DBExecutor) ([]student.Listing, error) {
	const q = `
SELECT s.id, s.name,
       COALESCE(array_agg(a.username ORDER BY a.username) FILTER (WHERE a.id IS NOT NULL), '{}') AS owners
FROM students s
LEFT JOIN student_owners so ON so.student_id = s.id
LEFT JOIN accounts a ON a.id = so.account_id
GROUP BY s.id
ORDER BY s.id`

	var rows []struct {
		ID     int            `db:"id"`
		Name   string         `db:"name"`
		Owners pq.StringArray `db:"owners"`
	}
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	listings := make([]student.Listing, 0, len(rows))
	for _, r := range rows {
		listings = append(listings, student.Listing{
			Summary: student.Summary{ID: r.ID, Name: r.Name},
			Owners:  []string(r.Owners),
		})
	}
	return listings, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id int, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	err := repo.getExec(exec).GetContext(ctx, &row,
		`SELECT id, name, age, current_level, final_goal, future_concepts, notes FROM students WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return student.Student{
		ID:             row.ID,
		Name:           row.Name,
		Age:            row.Age,
		CurrentLevel:   row.CurrentLevel,
		FinalGoal:      row.FinalGoal,
		FutureConcepts: []string(row.FutureConcepts),
		Notes:          row.Notes.String,
	}, nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student, exec ...core.DBExecutor) (student.Student, error) {
	const q = `
INSERT INTO students (name, age, current_level, final_goal, future_concepts, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	concepts := s.FutureConcepts
	if concepts == nil {
		concepts = []string{}
	}
	err := repo.getExec(exec).QueryRowxContext(ctx, q,
		s.Name, s.Age, s.CurrentLevel, s.FinalGoal, pq.StringArray(concepts), null.NewString(s.Notes, s.Notes != "")).
		Scan(&s.ID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	s.FutureConcepts = concepts
	return s, nil
}

func (repo studentRepository) ListClasses(ctx context.Context, studentID int, exec ...core.DBExecutor) ([]student.Class, error) {
	var rows []classRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, classSelect+` WHERE c.student_id = $1 ORDER BY c.id DESC`, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]student.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo studentRepository) GetClass(ctx context.Context, id int, exec ...core.DBExecutor) (student.Class, error) {
	var row classRow
	if err := repo.getExec(exec).GetContext(ctx, &row, classSelect+` WHERE c.id = $1`, id); err != nil {
		if isNoRows(err) {
			return student.Class{}, student.ErrClassNotFound
		}
		return student.Class{}, errors.Wrap(err, "getting class")
	}
	return row.class(), nil
}

func (repo studentRepository) ApplyCurriculum(ctx context.Context, studentID int, c student.Curriculum, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)

	concepts := c.FutureConcepts
	if concepts == nil {
		concepts = []string{}
	}
	res, err := ex.ExecContext(ctx, `
UPDATE students
SET current_level = $2, final_goal = $3, future_concepts = $4, notes = COALESCE(NULLIF($5, ''), notes)
WHERE id = $1`,
		studentID, c.CurrentLevel, c.FinalGoal, pq.StringArray(concepts), c.Notes)
	if err != nil {
		return errors.Wrap(err, "updating student plan")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return student.ErrNotFound
	}

	_, err = ex.ExecContext(ctx, `
DELETE FROM classes c
WHERE c.student_id = $1
  AND c.status IN ('upcoming', 'assessment')
  AND NOT EXISTS (SELECT 1 FROM submissions s WHERE s.class_id = c.id)`, studentID)
	if err != nil {
		return errors.Wrap(err, "deleting planned classes")
	}

	for _, pc := range c.Classes {
		_, err := ex.ExecContext(ctx, `
INSERT INTO classes (student_id, status, name, relevance, methods, stretch_methods, skills_tested, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			studentID, pc.Status, pc.Name, null.NewString(pc.Relevance, pc.Relevance != ""),
			pq.StringArray(nonNil(pc.Methods)), nullableArray(pc.StretchMethods), nullableArray(pc.SkillsTested),
			pc.Description)
		if err != nil {
			return errors.Wrapf(err, "inserting class %q", pc.Name)
		}
	}
	return nil
}

func (repo studentRepository) SetClassWork(ctx context.Context, classID int, kind, text, notes string, exec ...core.DBExecutor) error {
	var q string
	switch kind {
	case student.WorkClasswork:
		q = `UPDATE classes SET classwork = $2, notes = $3 WHERE id = $1`
	case student.WorkHomework:
		q = `UPDATE classes SET hw = $2, hw_notes = $3 WHERE id = $1`
	default:
		return errors.Errorf("unknown class work kind %q", kind)
	}
	res, err := repo.getExec(exec).ExecContext(ctx, q, classID, text, null.NewString(notes, notes != ""))
	if err != nil {
		return errors.Wrap(err, "updating class work")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return student.ErrClassNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableArray(s []string) interface{} {
	if len(s) == 0 {
		return nil
	}
	return pq.StringArray(s)
}
