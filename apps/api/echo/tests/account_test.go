package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/codeabode/backend/apps/api/echo"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/tests"
)

func loginBody(username, password string) []byte {
	return []byte(`{"username":"` + username + `","password":"` + password + `"}`)
}

func Test_accountApi_login(t *testing.T) {
	env := setup(t)
	acc := testutil.CreateAccount(t, env.accRepo, "tina", "Tina")

	invalidCreds := marshallObj(t, httpErr{Error: "invalid credentials"})
	env.run(t, []httpTest{
		{
			name: "missing fields", path: "/api/login", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"this field is required","password":"this field is required"}`),
		},
		{name: "unknown username", path: "/api/login", body: loginBody("nobody", testutil.Password), wantCode: http.StatusUnauthorized, wantData: invalidCreds},
		{name: "wrong password", path: "/api/login", body: loginBody("tina", "wrong-password"), wantCode: http.StatusUnauthorized, wantData: invalidCreds},
	})

	t.Run("success", func(t *testing.T) {
		rec := env.do(newRequest(http.MethodPost, "/api/login", loginBody("TINA ", testutil.Password)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, acc.Name, res.Name)
		assert.NotEmpty(t, res.Token)
		assert.WithinDuration(t, time.Now().Add(15*24*time.Hour), res.ExpiresAt, time.Minute)

		tokCookie := findCookie(rec, "token")
		require.NotNil(t, tokCookie)
		assert.Equal(t, res.Token, tokCookie.Value)
		assert.True(t, tokCookie.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, tokCookie.SameSite)

		nameCookie := findCookie(rec, "name")
		require.NotNil(t, nameCookie)
		assert.Equal(t, "Tina", nameCookie.Value)
		assert.False(t, nameCookie.HttpOnly)
	})
}

func Test_accountApi_authRequired(t *testing.T) {
	env := setup(t)
	unauth := marshallObj(t, errUnauthorized)

	env.run(t, []httpTest{
		{name: "no token", path: "/api/list_students", wantCode: http.StatusUnauthorized, wantData: unauth},
		{name: "unknown token", path: "/api/list_students", token: "not-a-token", wantCode: http.StatusUnauthorized, wantData: unauth},
		{name: "logout", path: "/api/logout", wantCode: http.StatusUnauthorized, wantData: unauth},
		{name: "questions", method: http.MethodGet, path: "/api/get_questions", wantCode: http.StatusUnauthorized, wantData: unauth},
		{name: "gallery", method: http.MethodGet, path: "/api/projects", wantCode: http.StatusUnauthorized, wantData: unauth},
	})
}

func Test_accountApi_cookieAndBearer(t *testing.T) {
	env := setup(t)
	acc := testutil.CreateAccount(t, env.accRepo, "tina", "Tina")
	revoked := env.token(t, acc)
	_, err := env.sessions.RevokeAll(context.Background(), acc.ID)
	require.NoError(t, err)
	live := env.token(t, acc)

	tests := []struct {
		name     string
		cookie   string
		bearer   string
		wantCode int
	}{
		{name: "revoked cookie, live header", cookie: revoked, bearer: live, wantCode: http.StatusOK},
		{name: "unknown cookie, live header", cookie: "not-a-token", bearer: live, wantCode: http.StatusOK},
		{name: "live cookie, unknown header", cookie: live, bearer: "not-a-token", wantCode: http.StatusOK},
		{name: "live cookie only", cookie: live, wantCode: http.StatusOK},
		{name: "both revoked", cookie: revoked, bearer: revoked, wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/api/list_students", tt.bearer)
			req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			env.do(req, rec)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

// login, list the owned students, change the password, and check the old session is gone.
func Test_sessionLifecycle(t *testing.T) {
	env := setup(t)
	acc := testutil.CreateAccount(t, env.accRepo, "tina", "Tina", "tina@test.cd")
	other := testutil.CreateAccount(t, env.accRepo, "omar", "Omar")

	s1 := testutil.CreateStudent(t, env.stuRepo, "Ada")
	s2 := testutil.CreateStudent(t, env.stuRepo, "Linus")
	s3 := testutil.CreateStudent(t, env.stuRepo, "Grace")
	testutil.AddOwner(t, env.accessRepo, acc.ID, s1.ID)
	testutil.AddOwner(t, env.accessRepo, acc.ID, s2.ID)
	testutil.AddOwner(t, env.accessRepo, other.ID, s3.ID)
	otherToken := env.token(t, other)

	login := func(pwd string) LoginResponse {
		rec := env.do(newRequest(http.MethodPost, "/api/login", loginBody("tina", pwd)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}
	first := login(testutil.Password)
	second := login(testutil.Password)
	owned := marshallList(t, student.Summary{ID: s1.ID, Name: "Ada"}, student.Summary{ID: s2.ID, Name: "Linus"})

	env.run(t, []httpTest{
		{name: "owned students", path: "/api/list_students", token: first.Token, wantCode: http.StatusOK, wantData: owned},
		{name: "owned students (second token)", path: "/api/list_students", token: second.Token, wantCode: http.StatusOK, wantData: owned},
		{
			name: "wrong current password", path: "/api/reset-password",
			body:     []byte(`{"username":"tina","password":"nope-nope","new_password":"brand-new-password"}`),
			wantCode: http.StatusUnauthorized, wantData: marshallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name: "reset password", path: "/api/reset-password",
			body:     []byte(`{"username":"tina","password":"` + testutil.Password + `","new_password":"brand-new-password"}`),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, PasswordResetResponse{Success: "Password changed. Please log in again.", TokensRevoked: 2}),
		},
		{name: "old token rejected", path: "/api/list_students", token: first.Token, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errUnauthorized)},
		{name: "second token rejected", path: "/api/list_students", token: second.Token, wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errUnauthorized)},
		{
			name: "other account untouched", path: "/api/list_students", token: otherToken, wantCode: http.StatusOK,
			wantData: marshallList(t, student.Summary{ID: s3.ID, Name: "Grace"}),
		},
	})

	t.Run("old token rejected as cookie", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/list_students")
		req.AddCookie(&http.Cookie{Name: "token", Value: first.Token})
		env.do(req, rec)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		// a rejected session clears both cookies
		if c := findCookie(rec, "token"); assert.NotNil(t, c) {
			assert.Equal(t, -1, c.MaxAge)
		}
		assert.NotNil(t, findCookie(rec, "name"))
	})

	t.Run("new password works", func(t *testing.T) {
		res := login("brand-new-password")
		rec := env.do(newAuthRequest(http.MethodPost, "/api/list_students", res.Token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("owner was notified", func(t *testing.T) {
		sent := env.mailSvc.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "password_changed", sent[0].TemplateName)
		assert.Equal(t, "tina@test.cd", sent[0].To[0].Address)
	})
}

func Test_accountApi_logout(t *testing.T) {
	env := setup(t)
	acc := testutil.CreateAccount(t, env.accRepo, "tina", "Tina")
	token := env.token(t, acc)
	kept := env.token(t, acc)

	rec := env.do(newAuthRequest(http.MethodPost, "/api/logout", token))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	if c := findCookie(rec, "token"); assert.NotNil(t, c) {
		assert.Equal(t, -1, c.MaxAge)
	}

	rec = env.do(newAuthRequest(http.MethodPost, "/api/list_students", token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// only the presented token is expired
	rec = env.do(newAuthRequest(http.MethodPost, "/api/list_students", kept))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_accountApi_updateEmail(t *testing.T) {
	env := setup(t)
	acc := testutil.CreateAccount(t, env.accRepo, "tina", "Tina")
	token := env.token(t, acc)

	env.run(t, []httpTest{
		{
			name: "invalid email", method: http.MethodPut, path: "/api/account/email", token: token,
			body: []byte(`{"email":"not-an-email"}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"email must be a valid email address"}`),
		},
	})

	rec := env.do(newAuthRequest(http.MethodPut, "/api/account/email", token, []byte(`{"email":" Tina@Test.CD "}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tina@test.cd", got.Email)
}
