package echoapi

import (
	"net/http"
	"path"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core/project"
)

type projectApi struct {
	svc      *project.Service
	validate *validator.Validate
}

func registerProjectAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := projectApi{svc: opts.Projects, validate: opts.Validate}

	ag := g.Group("", authed)
	ag.POST("/submit_project", api.submit)

	pg := ag.Group("/projects")
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.POST("/:id/view", api.view)
	pg.POST("/:id/rebuild", api.rebuild)
}

// Handlers

func (api *projectApi) submit(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "submitting project")
	}
	return ctx.JSON(http.StatusAccepted, res)
}

func (api *projectApi) query(ctx echo.Context) error {
	filter := new(project.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []project.Project{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	projects, err := api.svc.List(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	return ctx.JSON(http.StatusOK, projects)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	p, err := api.svc.Get(ctx.Request().Context(), acc.ID, id)
	if err != nil {
		return errors.Wrap(err, "getting project")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *projectApi) view(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	if err := api.svc.View(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "counting view")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) rebuild(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	res, err := api.svc.Rebuild(ctx.Request().Context(), acc.ID, id)
	if err != nil {
		return errors.Wrap(err, "rebuilding project")
	}
	return ctx.JSON(http.StatusAccepted, res)
}

// registerPlayground serves the built files of ready projects.
func registerPlayground(e *echo.Echo, svc *project.Service, artifacts ArtifactLocator) {
	if artifacts == nil {
		return
	}
	serve := func(ctx echo.Context) error {
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}
		method, err := svc.Artifact(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "finding artifact")
		}
		dir, ok := artifacts.Artifact(id, method)
		if !ok {
			return errHttpNotFound
		}
		// path.Clean on a rooted path drops any "..", so the file stays inside dir
		name := path.Clean("/" + ctx.Param("*"))
		return ctx.File(filepath.Join(dir, filepath.FromSlash(name)))
	}
	e.GET("/play/:id/*", serve)
	e.GET("/play/:id", func(ctx echo.Context) error {
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}
		return ctx.Redirect(http.StatusMovedPermanently, project.PlayURL(id))
	})
}
