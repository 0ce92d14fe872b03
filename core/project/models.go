package project

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/build"
)

type Project struct {
	ID           int       `json:"id"`
	SubmissionID int       `json:"-"`
	AccountID    int       `json:"-"`
	Author       string    `json:"author_name"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	DeployMethod string    `json:"deploy_method"`
	Status       string    `json:"status"`
	BuildLog     *string   `json:"build_log,omitempty"`
	Views        int       `json:"views"`
	URL          string    `json:"url,omitempty"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// PlayURL is where a ready project's artifact is served.
func PlayURL(id int) string {
	return "/play/" + strconv.Itoa(id) + "/"
}

func (p *Project) setURL() {
	if p.Status == build.StatusReady {
		p.URL = PlayURL(p.ID)
	} else {
		p.URL = ""
	}
}

// NewProject publishes the latest submission of a class.
type NewProject struct {
	ClassID      int    `json:"class_id" validate:"required,min=1"`
	WorkType     string `json:"work_type" validate:"required,oneof=classwork homework project"`
	Title        string `json:"title" validate:"required,notblank,max=120"`
	Description  string `json:"description" validate:"max=2000"`
	DeployMethod string `json:"deploy_method" validate:"required"`
}

func (np *NewProject) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Description = core.CleanString(np.Description)
	np.DeployMethod = core.CleanString(np.DeployMethod, true /* lower */)
	return validate.Struct(np)
}

// Submitted is the immediate answer to a project submission.
type Submitted struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

type QueryFilter struct {
	Search       string `query:"search"`
	Status       string `query:"status"`
	DeployMethod string `query:"deploy_method"`
	AuthorID     int    `query:"author"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.DeployMethod = core.CleanString(qf.DeployMethod, true /* lower */)
}
