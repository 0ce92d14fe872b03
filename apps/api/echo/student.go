package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
)

type studentApi struct {
	svc      *student.Service
	ledger   *submission.Ledger
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := studentApi{
		svc:      opts.Students,
		ledger:   opts.Ledger,
		validate: opts.Validate,
	}

	ag := g.Group("", authed)
	ag.POST("/list_students", api.list)
	ag.POST("/get_student/:id", api.retrieve)
	ag.POST("/submit/:type", api.submit)
}

// Handlers

func (api *studentApi) list(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.ListOwned(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx, "id")
	if err != nil {
		// ids that cannot exist are not owned either
		return errUnauthorized
	}
	s, err := api.svc.GetOwned(ctx.Request().Context(), acc.ID, id)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) submit(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	workType := ctx.Param("type")
	if !submission.ValidWorkType(workType) {
		return errHttpNotFound
	}

	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	data.WorkType = workType
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.ledger.Submit(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting work")
	}
	return ctx.JSON(http.StatusCreated, sub)
}
