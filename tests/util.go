// Package testutil holds fixtures shared by the tests of several packages.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/storage/database"
)

const Password = "correct-horse-battery"

// Config returns a configuration fit for tests. It never reads the environment.
func Config(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		AppName:          "CodeAbode",
		Env:              "TEST",
		TestMode:         true,
		PasswordHashCost: bcrypt.MinCost,
		Server:           core.ServerConfig{Address: ":0", ShutdownTimeout: time.Second},
		Session:          core.SessionConfig{TTL: 15 * 24 * time.Hour},
		RateLimit:        core.RateLimitConfig{Requests: 1000, Window: time.Minute},
		Builder: core.BuildConfig{
			WorkspaceRoot: t.TempDir(),
			Timeout:       10 * time.Second,
			Workers:       1,
			QueueSize:     4,
			Tools:         core.DefaultBuildTools(),
		},
		Mail: core.MailConfig{DefaultFrom: "CodeAbode <noreply@test.cd>"},
		Log:  core.LogConfig{Level: "error"},
	}
}

func CreateAccount(t *testing.T, repo account.Repository, username, name string, email ...string) account.Account {
	t.Helper()
	now := time.Now().UTC()
	acc := account.Account{Username: username, Name: name, CreatedAt: now, UpdatedAt: now}
	if len(email) > 0 {
		acc.Email = email[0]
	}
	if err := acc.SetPassword(Password, bcrypt.MinCost); err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount(): %v", err)
	}
	return acc
}

func CreateStudent(t *testing.T, repo student.Repository, name string) student.Student {
	t.Helper()
	s, err := repo.CreateStudent(context.Background(), student.Student{
		Name:           name,
		Age:            11,
		CurrentLevel:   "beginner",
		FinalGoal:      "make a platformer",
		FutureConcepts: []string{},
	})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return s
}

// CreateClasses plans upcoming classes for the student, replacing its untaught classes
// that have no submissions. Classes are returned in the given order.
func CreateClasses(t *testing.T, repo student.Repository, studentID int, names ...string) []student.Class {
	t.Helper()
	ctx := context.Background()
	c := student.Curriculum{CurrentLevel: "beginner", FinalGoal: "make a platformer", FutureConcepts: []string{}}
	for _, name := range names {
		c.Classes = append(c.Classes, student.PlannedClass{Status: student.StatusUpcoming, Name: name, Methods: []string{"print"}})
	}
	if err := repo.ApplyCurriculum(ctx, studentID, c); err != nil {
		t.Fatalf("CreateClasses(): %v", err)
	}
	classes, err := repo.ListClasses(ctx, studentID)
	if err != nil {
		t.Fatalf("CreateClasses(): %v", err)
	}

	byName := make(map[string]student.Class, len(classes))
	for _, cls := range classes {
		byName[cls.Name] = cls
	}
	out := make([]student.Class, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out
}

func AddOwner(t *testing.T, repo access.Repository, accountID, studentID int) {
	t.Helper()
	if _, err := repo.AddOwner(context.Background(), accountID, studentID); err != nil {
		t.Fatalf("AddOwner(): %v", err)
	}
}

// PrepareDB opens the PostgreSQL database named by TEST_DATABASE_URL, migrates it and empties it.
// The test is skipped when the variable is unset.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := database.OpenURL(ctx, dbURL)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	const q = `TRUNCATE accounts, tokens, students, student_owners, classes, submissions, questions, comments, projects
		RESTART IDENTITY CASCADE`
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB(): %v", err)
	}
}
