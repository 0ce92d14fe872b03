package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core/forum"
)

type forumApi struct {
	svc      *forum.Service
	validate *validator.Validate
}

func registerForumAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := forumApi{svc: opts.Forum, validate: opts.Validate}

	ag := g.Group("", authed)
	ag.POST("/ask", api.ask)
	ag.GET("/get_questions", api.list)
	ag.POST("/comment", api.comment)
}

func (api *forumApi) ask(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	var data forum.NewQuestion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuestion")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.Ask(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "asking question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *forumApi) list(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	questions, err := api.svc.List(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "listing questions")
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *forumApi) comment(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	var data forum.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Comment(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "commenting")
	}
	return ctx.JSON(http.StatusCreated, CommentResponse{ID: c.ID, CreatedAt: c.CreatedAt})
}

type CommentResponse struct {
	ID        int       `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}
