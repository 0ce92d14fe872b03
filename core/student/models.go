package student

import (
	"github.com/go-playground/validator/v10"

	"github.com/codeabode/backend/core"
)

// Class statuses
const (
	StatusUpcoming            = "upcoming"
	StatusAssessment          = "assessment"
	StatusCompleted           = "completed"
	StatusCompletedAssessment = "completed_assessment"
)

// Work kinds a class carries generated text for.
const (
	WorkClasswork = "classwork"
	WorkHomework  = "homework"
)

// IsTaught reports whether a class status means the class already happened.
func IsTaught(status string) bool {
	return status == StatusCompleted || status == StatusCompletedAssessment
}

type Summary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Student struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	CurrentLevel   string   `json:"current_level"`
	FinalGoal      string   `json:"final_goal"`
	FutureConcepts []string `json:"future_concepts"`
	Notes          string   `json:"notes,omitempty"`
	Classes        []Class  `json:"classes"`
}

type Class struct {
	ID             int      `json:"class_id"`
	StudentID      int      `json:"-"`
	Status         string   `json:"status"`
	Name           string   `json:"name"`
	Relevance      string   `json:"relevance,omitempty"`
	Methods        []string `json:"methods"`
	StretchMethods []string `json:"stretch_methods,omitempty"`
	SkillsTested   []string `json:"skills_tested,omitempty"`
	Description    string   `json:"description"`
	Classwork      string   `json:"classwork,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Homework       string   `json:"hw,omitempty"`
	HomeworkNotes  string   `json:"hw_notes,omitempty"`

	// latest submitted work, when any
	ClassworkSubmission string `json:"classwork_submission,omitempty"`
	HomeworkSubmission  string `json:"homework_submission,omitempty"`
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name      string `json:"name" validate:"required,notblank"`
	Age       int    `json:"age" validate:"required,min=4,max=120"`
	Level     string `json:"current_level" validate:"required,notblank"`
	FinalGoal string `json:"final_goal" validate:"required,notblank"`
	Notes     string `json:"notes"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Level = core.CleanString(ns.Level)
	ns.FinalGoal = core.CleanString(ns.FinalGoal)
	ns.Notes = core.CleanString(ns.Notes)
	return validate.Struct(ns)
}

// Listing is a student as seen by an administrator.
type Listing struct {
	Summary
	Owners []string `json:"owners"` // usernames
}
