// Package inmemdb is an in-memory implementation of the core repositories, for tests and local runs.
//
// InTx holds a shared lock for the whole transaction and ownership changes take it exclusively,
// so a guarded operation never sees a grant disappear halfway. Transactions are not rolled back.
package inmemdb

import (
	"context"
	"sync"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/forum"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/session"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
)

type ownerKey struct {
	accountID int
	studentID int
}

type DB struct {
	txMu sync.RWMutex
	mu   sync.RWMutex

	seq         map[string]int
	accounts    map[int]*account.Account
	tokens      map[string]session.Token
	students    map[int]*student.Student
	owners      map[ownerKey]struct{}
	classes     map[int]*student.Class
	submissions []submission.Submission // ascending IDs
	questions   map[int]*forum.Question
	comments    []forum.Comment
	projects    map[int]*project.Project
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		seq:       make(map[string]int),
		accounts:  make(map[int]*account.Account),
		tokens:    make(map[string]session.Token),
		students:  make(map[int]*student.Student),
		owners:    make(map[ownerKey]struct{}),
		classes:   make(map[int]*student.Class),
		questions: make(map[int]*forum.Question),
		projects:  make(map[int]*project.Project),
	}
}

// InTx runs fn under the transaction lock. exec is nil; the repositories ignore it.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.RLock()
	defer db.txMu.RUnlock()
	return fn(nil)
}

// nextID must be called with mu held.
func (db *DB) nextID(table string) int {
	db.seq[table]++
	return db.seq[table]
}

// studentOf must be called with mu held.
func (db *DB) studentOf(kind access.Kind, id int) (int, bool) {
	switch kind {
	case access.KindStudent:
		_, ok := db.students[id]
		return id, ok
	case access.KindClass:
		if c, ok := db.classes[id]; ok {
			return c.StudentID, true
		}
	case access.KindSubmission:
		if s, ok := db.submission(id); ok {
			return db.studentOf(access.KindClass, s.ClassID)
		}
	case access.KindProject:
		if p, ok := db.projects[id]; ok {
			return db.studentOf(access.KindSubmission, p.SubmissionID)
		}
	case access.KindQuestion:
		if q, ok := db.questions[id]; ok {
			return db.studentOf(access.KindSubmission, q.SubmissionID)
		}
	}
	return 0, false
}

// owns must be called with mu held.
func (db *DB) owns(accountID int, kind access.Kind, id int) bool {
	studentID, ok := db.studentOf(kind, id)
	if !ok {
		return false
	}
	_, ok = db.owners[ownerKey{accountID: accountID, studentID: studentID}]
	return ok
}

// submission must be called with mu held.
func (db *DB) submission(id int) (submission.Submission, bool) {
	for _, s := range db.submissions {
		if s.ID == id {
			return s, true
		}
	}
	return submission.Submission{}, false
}

// latest must be called with mu held.
func (db *DB) latest(classID int, workType string) (submission.Submission, bool) {
	for i := len(db.submissions) - 1; i >= 0; i-- {
		if s := db.submissions[i]; s.ClassID == classID && s.WorkType == workType {
			return s, true
		}
	}
	return submission.Submission{}, false
}

func (db *DB) username(accountID int) string {
	if acc, ok := db.accounts[accountID]; ok {
		return acc.Username
	}
	return ""
}
