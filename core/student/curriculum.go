package student

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

var ErrEmptyCurriculum = errors.New("generated curriculum has no classes")

// PlannedClass is a class proposed by the curriculum generator.
type PlannedClass struct {
	Status         string   `json:"status"`
	Name           string   `json:"name"`
	Relevance      string   `json:"relevance,omitempty"`
	Methods        []string `json:"methods,omitempty"`
	StretchMethods []string `json:"stretch_methods,omitempty"`
	SkillsTested   []string `json:"skills_tested,omitempty"`
	Description    string   `json:"description,omitempty"`
}

// Curriculum is the plan document exchanged with the generator.
type Curriculum struct {
	CurrentLevel   string         `json:"current_level"`
	FinalGoal      string         `json:"final_goal"`
	Notes          string         `json:"notes,omitempty"`
	Classes        []PlannedClass `json:"classes"`
	FutureConcepts []string       `json:"future_concepts"`
}

func stringArray() map[string]interface{} {
	return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
}

// CurriculumSchema is the JSON schema generated curricula must follow.
var CurriculumSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"current_level": map[string]interface{}{"type": "string"},
		"final_goal":    map[string]interface{}{"type": "string"},
		"notes":         map[string]interface{}{"type": "string"},
		"classes": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"status":          map[string]interface{}{"type": "string", "enum": []string{StatusUpcoming, StatusAssessment}},
					"name":            map[string]interface{}{"type": "string"},
					"relevance":       map[string]interface{}{"type": "string"},
					"methods":         stringArray(),
					"stretch_methods": stringArray(),
					"skills_tested":   stringArray(),
					"description":     map[string]interface{}{"type": "string"},
				},
				"required": []string{"status", "name"},
			},
		},
		"future_concepts": stringArray(),
	},
	"required": []string{"current_level", "final_goal", "classes", "future_concepts"},
}

const (
	curriculumPrompt = `You plan one-to-one programming lessons for a single student.
Keep future_concepts as the complete ordered path from the current level to the final goal.
Split concepts into small teachable classes and tie every class to the final goal in "relevance".
Insert an "assessment" class, a small project named "Your <Project>", once one or two concepts form a usable project.
Never output classes that were already taught. Answer with JSON only.`

	classworkPrompt = `You write the in-class worksheet for one lesson, for a young reader.
Use short sentences and bullets, tiny code snippets only, and cover only the methods of the class.
Structure: goal, plan, steps, a quick check, a stretch task when stretch methods exist.`

	homeworkPrompt = `You write a short homework for one lesson, for a young reader.
Reuse only what the class taught, build toward the student's final goal, and finish with how to check the result.`
)

// Planner generates curricula and class material through a core.TextGenerator.
type Planner struct {
	repo   Repository
	tx     core.Transactor
	gen    core.TextGenerator
	logger core.Logger
}

func NewPlanner(repo Repository, tx core.Transactor, gen core.TextGenerator, logger core.Logger) *Planner {
	return &Planner{repo: repo, tx: tx, gen: gen, logger: logger}
}

type planContext struct {
	Name           string         `json:"name"`
	Age            int            `json:"age"`
	CurrentLevel   string         `json:"current_level"`
	FinalGoal      string         `json:"final_goal"`
	Notes          string         `json:"notes,omitempty"`
	Classes        []PlannedClass `json:"classes"`
	FutureConcepts []string       `json:"future_concepts"`
}

func (p *Planner) loadContext(ctx context.Context, studentID int) (planContext, error) {
	s, err := p.repo.GetStudent(ctx, studentID)
	if err != nil {
		return planContext{}, errors.Wrap(err, "getting student")
	}
	classes, err := p.repo.ListClasses(ctx, studentID)
	if err != nil {
		return planContext{}, errors.Wrap(err, "listing classes")
	}

	pc := planContext{
		Name:           s.Name,
		Age:            s.Age,
		CurrentLevel:   s.CurrentLevel,
		FinalGoal:      s.FinalGoal,
		Notes:          s.Notes,
		FutureConcepts: s.FutureConcepts,
		Classes:        make([]PlannedClass, 0, len(classes)),
	}
	// oldest first reads more naturally
	for i := len(classes) - 1; i >= 0; i-- {
		c := classes[i]
		pc.Classes = append(pc.Classes, PlannedClass{
			Status:         c.Status,
			Name:           c.Name,
			Relevance:      c.Relevance,
			Methods:        c.Methods,
			StretchMethods: c.StretchMethods,
			SkillsTested:   c.SkillsTested,
			Description:    c.Description,
		})
	}
	return pc, nil
}

// Generate plans the upcoming classes of a student from its profile and an optional brief.
func (p *Planner) Generate(ctx context.Context, studentID int, brief string) (Curriculum, error) {
	pc, err := p.loadContext(ctx, studentID)
	if err != nil {
		return Curriculum{}, err
	}
	state, err := json.Marshal(pc)
	if err != nil {
		return Curriculum{}, errors.Wrap(err, "encoding student state")
	}
	turns := []core.Turn{{Role: "user", Content: string(state)}}
	if brief = core.CleanString(brief); brief != "" {
		turns = append(turns, core.Turn{Role: "user", Content: brief})
	}
	return p.plan(ctx, studentID, turns)
}

// Refine re-plans the upcoming classes after feedback on how the student is doing.
func (p *Planner) Refine(ctx context.Context, studentID int, feedback string) (Curriculum, error) {
	feedback = core.CleanString(feedback)
	if feedback == "" {
		return Curriculum{}, core.NewValidationError(nil, core.FieldError{Field: "feedback", Error: "this field is required"})
	}
	pc, err := p.loadContext(ctx, studentID)
	if err != nil {
		return Curriculum{}, err
	}
	state, err := json.Marshal(pc)
	if err != nil {
		return Curriculum{}, errors.Wrap(err, "encoding student state")
	}
	turns := []core.Turn{
		{Role: "user", Content: string(state)},
		{Role: "user", Content: "Feedback from the last classes: " + feedback},
	}
	return p.plan(ctx, studentID, turns)
}

func (p *Planner) plan(ctx context.Context, studentID int, turns []core.Turn) (Curriculum, error) {
	var c Curriculum
	if err := p.gen.GenerateJSON(ctx, curriculumPrompt, turns, "curriculum", CurriculumSchema, &c); err != nil {
		return Curriculum{}, errors.Wrap(err, "generating curriculum")
	}
	if len(c.Classes) == 0 {
		return Curriculum{}, ErrEmptyCurriculum
	}

	// the generator may not hand back taught classes
	planned := c.Classes[:0]
	for _, pc := range c.Classes {
		if IsTaught(pc.Status) || core.CleanString(pc.Name) == "" {
			continue
		}
		if pc.Status != StatusAssessment {
			pc.Status = StatusUpcoming
		}
		planned = append(planned, pc)
	}
	c.Classes = planned
	if len(c.Classes) == 0 {
		return Curriculum{}, ErrEmptyCurriculum
	}

	err := p.tx.InTx(ctx, func(exec core.DBExecutor) error {
		return p.repo.ApplyCurriculum(ctx, studentID, c, exec)
	})
	if err != nil {
		return Curriculum{}, errors.Wrap(err, "applying curriculum")
	}
	p.logger.Info(fmt.Sprintf("curriculum applied to student %d: %d classes", studentID, len(c.Classes)))
	return c, nil
}

// Classwork generates and stores the worksheet of a class. notes are the tutor's extra instructions.
func (p *Planner) Classwork(ctx context.Context, classID int, notes string) (string, error) {
	return p.classMaterial(ctx, classID, WorkClasswork, classworkPrompt, notes)
}

// Homework generates and stores the homework of a class.
func (p *Planner) Homework(ctx context.Context, classID int, notes string) (string, error) {
	return p.classMaterial(ctx, classID, WorkHomework, homeworkPrompt, notes)
}

func (p *Planner) classMaterial(ctx context.Context, classID int, kind, prompt, notes string) (string, error) {
	c, err := p.repo.GetClass(ctx, classID)
	if err != nil {
		return "", errors.Wrap(err, "getting class")
	}
	s, err := p.repo.GetStudent(ctx, c.StudentID)
	if err != nil {
		return "", errors.Wrap(err, "getting student")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Student age: %d\nLevel: %s\nFinal goal: %s\n", s.Age, s.CurrentLevel, s.FinalGoal)
	if s.Notes != "" {
		fmt.Fprintf(&b, "Student notes: %s\n", s.Notes)
	}
	fmt.Fprintf(&b, "Class: %s\n", c.Name)
	if c.Relevance != "" {
		fmt.Fprintf(&b, "Relevance: %s\n", c.Relevance)
	}
	if len(c.Methods) > 0 {
		fmt.Fprintf(&b, "Methods: %s\n", strings.Join(c.Methods, ", "))
	}
	if len(c.StretchMethods) > 0 {
		fmt.Fprintf(&b, "Stretch methods: %s\n", strings.Join(c.StretchMethods, ", "))
	}
	if len(c.SkillsTested) > 0 {
		fmt.Fprintf(&b, "Skills tested: %s\n", strings.Join(c.SkillsTested, ", "))
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", c.Description)
	}
	if kind == WorkHomework && c.Classwork != "" {
		fmt.Fprintf(&b, "Classwork given:\n%s\n", c.Classwork)
	}
	if notes = core.CleanString(notes); notes != "" {
		fmt.Fprintf(&b, "Tutor notes: %s\n", notes)
	}

	text, err := p.gen.Generate(ctx, prompt, []core.Turn{{Role: "user", Content: b.String()}})
	if err != nil {
		return "", errors.Wrapf(err, "generating %s", kind)
	}
	text = strings.TrimSpace(text)
	if err := p.repo.SetClassWork(ctx, classID, kind, text, notes); err != nil {
		return "", errors.Wrapf(err, "storing %s", kind)
	}
	return text, nil
}
