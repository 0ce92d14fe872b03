package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, core.ErrUnauthorized.Error())
	errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, account.ErrInvalidCredentials.Error())
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests    = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
)

// domainErrors maps sentinel errors of the core packages to their HTTP answer.
var domainErrors = []struct {
	err  error
	herr *echo.HTTPError
}{
	{core.ErrUnauthorized, errUnauthorized},
	{account.ErrInvalidCredentials, errInvalidCredentials},
	{account.ErrNotFound, errUnauthorized},
	{build.ErrInProgress, echo.NewHTTPError(http.StatusConflict, build.ErrInProgress.Error())},
	{build.ErrQueueFull, echo.NewHTTPError(http.StatusServiceUnavailable, build.ErrQueueFull.Error())},
	{project.ErrAlreadyBuilt, echo.NewHTTPError(http.StatusConflict, project.ErrAlreadyBuilt.Error())},
	{project.ErrNotFound, errHttpNotFound},
	{student.ErrNotFound, errHttpNotFound},
	{student.ErrEmptyCurriculum, echo.NewHTTPError(http.StatusBadGateway, student.ErrEmptyCurriculum.Error())},
	{submission.ErrNotFound, errHttpNotFound},
	{submission.ErrInvalidWorkType, errHttpNotFound},
}

func toHTTPError(cause error) error {
	for _, d := range domainErrors {
		if cause == d.err {
			return d.herr
		}
	}
	return cause
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := toHTTPError(errors.Cause(err)).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateValidationErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if acc, ok := contextAccount(ctx); ok {
				args = append(args, acc.Person())
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if code == http.StatusUnauthorized {
			clearAuthCookies(ctx)
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
