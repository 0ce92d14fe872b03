package echoapi

import (
	"net/http"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/session"
)

type accountApi struct {
	svc           account.ServiceInterface
	sessions      *session.Manager
	validate      *validator.Validate
	translator    ut.Translator
	secureCookies bool
}

func registerAccountAPI(g *echo.Group, authed, limited echo.MiddlewareFunc, opts *Options) {
	api := accountApi{
		svc:           opts.Accounts,
		sessions:      opts.Sessions,
		validate:      opts.Validate,
		translator:    opts.Translator,
		secureCookies: opts.Conf.Server.SecureCookies,
	}

	// un-authed endpoints
	g.POST("/login", api.login, limited)
	g.POST("/reset-password", api.resetPassword, limited)

	// authed endpoints
	g.POST("/logout", api.logout, authed)
	g.PUT("/account/email", api.updateEmail, authed)
}

// Handlers

func (api *accountApi) login(ctx echo.Context) error {
	var data account.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.Authenticate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	tok, err := api.sessions.Issue(ctx.Request().Context(), acc.ID)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}

	setAuthCookies(ctx, tok, acc.Name, api.secureCookies)
	return ctx.JSON(http.StatusOK, LoginResponse{Name: acc.Name, Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data account.PasswordChange
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordChange")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	revoked, err := api.svc.ChangePassword(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "changing password")
	}

	clearAuthCookies(ctx)
	return ctx.JSON(http.StatusOK, PasswordResetResponse{
		Success:       "Password changed. Please log in again.",
		TokensRevoked: revoked,
	})
}

func (api *accountApi) logout(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}
	value, _ := ctx.Get(contextTokenKey).(string)
	if err := api.sessions.Revoke(ctx.Request().Context(), acc.ID, value); err != nil {
		return errors.Wrap(err, "revoking token")
	}

	clearAuthCookies(ctx)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) updateEmail(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return err
	}

	var data account.EmailUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EmailUpdate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err = api.svc.SetEmail(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "setting email")
	}
	return ctx.JSON(http.StatusOK, acc)
}

type (
	LoginResponse struct {
		Name      string    `json:"name"`
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	PasswordResetResponse struct {
		Success       string `json:"success"`
		TokensRevoked int64  `json:"tokens_revoked"`
	}
)
