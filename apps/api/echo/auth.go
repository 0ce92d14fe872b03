package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/session"
)

const (
	tokenCookie = "token"
	nameCookie  = "name"

	contextAccountKey = "account"
	contextTokenKey   = "token"
)

// presentedTokens returns the credentials carried by the request, the token cookie first, then the Authorization header.
func presentedTokens(ctx echo.Context) []string {
	var values []string
	if c, err := ctx.Cookie(tokenCookie); err == nil && c.Value != "" {
		values = append(values, c.Value)
	}
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		if v := strings.TrimSpace(auth[len("bearer "):]); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// validToken returns the first presented token that is live, with its account.
// A stale cookie does not shadow a good Authorization header.
func validToken(ctx echo.Context, sessions *session.Manager) (string, int, error) {
	err := core.ErrUnauthorized
	for _, value := range presentedTokens(ctx) {
		var accountID int
		accountID, err = sessions.Validate(ctx.Request().Context(), value)
		if err == nil {
			return value, accountID, nil
		}
		if errors.Cause(err) != core.ErrUnauthorized {
			return "", 0, err
		}
	}
	return "", 0, err
}

// sessionMiddleware rejects requests without a live token and stores the account in the context.
// Validity is checked against the store on every request.
func sessionMiddleware(sessions *session.Manager, accounts account.ServiceInterface) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			value, accountID, err := validToken(ctx, sessions)
			if err != nil {
				return errors.Wrap(err, "validating token")
			}
			acc, err := accounts.GetByID(ctx.Request().Context(), accountID)
			if err != nil {
				return errors.Wrap(err, "finding account of token")
			}
			ctx.Set(contextAccountKey, acc)
			ctx.Set(contextTokenKey, value)
			return next(ctx)
		}
	}
}

func contextAccount(ctx echo.Context) (account.Account, bool) {
	acc, ok := ctx.Get(contextAccountKey).(account.Account)
	return acc, ok
}

func getContextAccount(ctx echo.Context) (account.Account, error) {
	if acc, ok := contextAccount(ctx); ok {
		return acc, nil
	}
	return account.Account{}, core.ErrUnauthorized
}

func setAuthCookies(ctx echo.Context, tok session.Token, name string, secure bool) {
	maxAge := int(time.Until(tok.ExpiresAt).Seconds())
	ctx.SetCookie(&http.Cookie{
		Name:     tokenCookie,
		Value:    tok.Value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	ctx.SetCookie(&http.Cookie{
		Name:     nameCookie,
		Value:    name,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(ctx echo.Context) {
	for _, name := range []string{tokenCookie, nameCookie} {
		ctx.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == tokenCookie,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
