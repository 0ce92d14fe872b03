package student_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
	logsvc "github.com/codeabode/backend/services/logger"
	inmemdb "github.com/codeabode/backend/storage/database/inmem"
	"github.com/codeabode/backend/tests"
)

// scriptedGenerator answers with canned outputs and keeps the conversations it was given.
type scriptedGenerator struct {
	curriculum student.Curriculum
	text       string
	err        error
	turns      [][]core.Turn
	systems    []string
}

func (g *scriptedGenerator) Generate(_ context.Context, system string, turns []core.Turn) (string, error) {
	g.systems = append(g.systems, system)
	g.turns = append(g.turns, turns)
	return g.text, g.err
}

func (g *scriptedGenerator) GenerateJSON(_ context.Context, system string, turns []core.Turn, _ string, schema map[string]interface{}, out interface{}) error {
	g.systems = append(g.systems, system)
	g.turns = append(g.turns, turns)
	if g.err != nil {
		return g.err
	}
	if schema == nil {
		return errors.New("no schema")
	}
	b, err := json.Marshal(g.curriculum)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type plannerEnv struct {
	planner *student.Planner
	svc     *student.Service
	repo    student.Repository
	ledger  *submission.Ledger
	gen     *scriptedGenerator
	tutor   int
	ada     student.Student
}

func setupPlanner(t *testing.T) plannerEnv {
	db := inmemdb.Open()
	repo := inmemdb.NewStudentRepository(db)
	accessRepo := inmemdb.NewAccessRepository(db)
	e := plannerEnv{
		repo:   repo,
		gen:    &scriptedGenerator{},
		ledger: submission.NewLedger(inmemdb.NewSubmissionRepository(db)),
		svc:    student.NewService(repo, access.NewGate(accessRepo, db)),
	}
	e.planner = student.NewPlanner(repo, db, e.gen, logsvc.NewNopLogger())
	e.tutor = testutil.CreateAccount(t, inmemdb.NewAccountRepository(db), "tina", "Tina").ID
	e.ada = testutil.CreateStudent(t, repo, "Ada")
	testutil.AddOwner(t, accessRepo, e.tutor, e.ada.ID)
	return e
}

func classNames(classes []student.Class) []string {
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
	}
	return names
}

func TestPlanner_Generate(t *testing.T) {
	e := setupPlanner(t)
	ctx := context.Background()
	e.gen.curriculum = student.Curriculum{
		CurrentLevel:   "knows print",
		FinalGoal:      "make a platformer",
		FutureConcepts: []string{"loops", "functions"},
		Classes: []student.PlannedClass{
			{Status: student.StatusUpcoming, Name: "Loops", Methods: []string{"for", "range"}},
			{Status: "", Name: "Functions"},
			{Status: student.StatusCompleted, Name: "Print"}, // taught classes are never taken back
			{Status: student.StatusUpcoming, Name: "   "},
			{Status: student.StatusAssessment, Name: "Your Guessing Game"},
		},
	}

	c, err := e.planner.Generate(ctx, e.ada.ID, "  likes dinosaurs ")
	require.NoError(t, err)
	require.Len(t, c.Classes, 3)
	assert.Equal(t, student.StatusUpcoming, c.Classes[1].Status)

	t.Run("conversation", func(t *testing.T) {
		require.Len(t, e.gen.turns, 1)
		turns := e.gen.turns[0]
		require.Len(t, turns, 2)
		assert.Contains(t, turns[0].Content, `"name":"Ada"`)
		assert.Equal(t, core.Turn{Role: "user", Content: "likes dinosaurs"}, turns[1])
	})

	t.Run("stored", func(t *testing.T) {
		s, err := e.svc.GetOwned(ctx, e.tutor, e.ada.ID)
		require.NoError(t, err)
		assert.Equal(t, "knows print", s.CurrentLevel)
		assert.Equal(t, []string{"loops", "functions"}, s.FutureConcepts)
		// newest first
		assert.Equal(t, []string{"Your Guessing Game", "Functions", "Loops"}, classNames(s.Classes))
	})

	t.Run("untaught classes with submissions survive a new plan", func(t *testing.T) {
		s, err := e.svc.GetOwned(ctx, e.tutor, e.ada.ID)
		require.NoError(t, err)
		loops := s.Classes[2]
		_, err = e.ledger.Submit(ctx, e.tutor, submission.NewSubmission{ClassID: loops.ID, WorkType: submission.TypeClasswork, Work: "for i in range(3): print(i)"})
		require.NoError(t, err)

		e.gen.curriculum.Classes = []student.PlannedClass{{Status: student.StatusUpcoming, Name: "Lists"}}
		_, err = e.planner.Refine(ctx, e.ada.ID, "loops went well")
		require.NoError(t, err)

		s, err = e.svc.GetOwned(ctx, e.tutor, e.ada.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Lists", "Loops"}, classNames(s.Classes))
		assert.Equal(t, "for i in range(3): print(i)", s.Classes[1].ClassworkSubmission)

		last := e.gen.turns[len(e.gen.turns)-1]
		require.Len(t, last, 2)
		assert.Equal(t, "Feedback from the last classes: loops went well", last[1].Content)
		assert.Contains(t, last[0].Content, `"name":"Loops"`)
	})
}

func TestPlanner_errors(t *testing.T) {
	e := setupPlanner(t)
	ctx := context.Background()

	_, err := e.planner.Generate(ctx, 999, "")
	assert.Equal(t, student.ErrNotFound, errors.Cause(err))

	_, err = e.planner.Refine(ctx, e.ada.ID, "   ")
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "feedback", verr.Fields[0].Field)

	e.gen.curriculum = student.Curriculum{Classes: []student.PlannedClass{{Status: student.StatusCompleted, Name: "Print"}}}
	_, err = e.planner.Generate(ctx, e.ada.ID, "")
	assert.Equal(t, student.ErrEmptyCurriculum, err)

	boom := errors.New("upstream unavailable")
	e.gen.err = boom
	_, err = e.planner.Generate(ctx, e.ada.ID, "")
	assert.Equal(t, boom, errors.Cause(err))

	_, err = e.planner.Classwork(ctx, 999, "")
	assert.Equal(t, student.ErrClassNotFound, errors.Cause(err))
}

func TestPlanner_classMaterial(t *testing.T) {
	e := setupPlanner(t)
	ctx := context.Background()
	cls := testutil.CreateClasses(t, e.repo, e.ada.ID, "Loops")[0]

	e.gen.text = "  1. Count to three with range  \n"
	text, err := e.planner.Classwork(ctx, cls.ID, "use turtles")
	require.NoError(t, err)
	assert.Equal(t, "1. Count to three with range", text)

	prompt := e.gen.turns[0][0].Content
	assert.Contains(t, prompt, "Class: Loops\n")
	assert.Contains(t, prompt, "Methods: print\n")
	assert.Contains(t, prompt, "Tutor notes: use turtles\n")

	e.gen.text = "Print the even numbers below 10."
	_, err = e.planner.Homework(ctx, cls.ID, "")
	require.NoError(t, err)

	// homework builds on the stored classwork
	prompt = e.gen.turns[1][0].Content
	assert.True(t, strings.Contains(prompt, "Classwork given:\n1. Count to three with range\n"), prompt)
	assert.NotEqual(t, e.gen.systems[0], e.gen.systems[1])

	got, err := e.repo.GetClass(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, "1. Count to three with range", got.Classwork)
	assert.Equal(t, "use turtles", got.Notes)
	assert.Equal(t, "Print the even numbers below 10.", got.Homework)
	assert.Empty(t, got.HomeworkNotes)
}

func TestService_students(t *testing.T) {
	e := setupPlanner(t)
	ctx := context.Background()

	owned, err := e.svc.ListOwned(ctx, e.tutor)
	require.NoError(t, err)
	assert.Equal(t, []student.Summary{{ID: e.ada.ID, Name: "Ada"}}, owned)

	owned, err = e.svc.ListOwned(ctx, 999)
	require.NoError(t, err)
	assert.NotNil(t, owned)
	assert.Empty(t, owned)

	s, err := e.svc.GetOwned(ctx, e.tutor, e.ada.ID)
	require.NoError(t, err)
	assert.NotNil(t, s.Classes)

	_, err = e.svc.GetOwned(ctx, 999, e.ada.ID)
	assert.Equal(t, core.ErrUnauthorized, err)

	bob, err := e.svc.Create(ctx, student.NewStudent{Name: "Bob", Age: 9, Level: "none", FinalGoal: "a website"})
	require.NoError(t, err)
	listing, err := e.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 2)
	for _, l := range listing {
		if l.ID == bob.ID {
			assert.Empty(t, l.Owners)
		} else {
			assert.Equal(t, []string{"tina"}, l.Owners)
		}
	}
}
