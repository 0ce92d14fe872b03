package account_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/session"
	emailsvc "github.com/codeabode/backend/services/email"
	logsvc "github.com/codeabode/backend/services/logger"
	inmemdb "github.com/codeabode/backend/storage/database/inmem"
	"github.com/codeabode/backend/tests"
)

type accountEnv struct {
	svc      *account.Service
	repo     account.Repository
	sessions *session.Manager
	mailSvc  *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) accountEnv {
	conf := testutil.Config(t)
	db := inmemdb.Open()
	e := accountEnv{
		repo:     inmemdb.NewAccountRepository(db),
		sessions: session.NewManager(conf, inmemdb.NewSessionRepository(db)),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logsvc.NewNopLogger()),
	}
	e.svc = account.NewService(conf, e.repo, db, e.sessions, e.mailSvc)
	return e
}

func TestService_Create(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	validate := core.NewValidator(core.NewTranslator())

	na := account.NewAccount{Username: " Tina_K ", Name: " Tina  K. ", Email: "TINA@Test.cd", Password: testutil.Password}
	require.NoError(t, na.Validate(validate))
	acc, err := e.svc.Create(ctx, na)
	require.NoError(t, err)
	assert.Equal(t, "tina_k", acc.Username)
	assert.Equal(t, "tina@test.cd", acc.Email)
	assert.NotEqual(t, []byte(testutil.Password), acc.PasswordHash)
	assert.NoError(t, acc.CheckPassword(testutil.Password))

	_, err = e.svc.Create(ctx, account.NewAccount{Username: "tina_k", Name: "Other", Password: testutil.Password})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, account.ErrUsernameExists, verr.Err)
	assert.Equal(t, "username", verr.Fields[0].Field)

	got, err := e.svc.GetByUsername(ctx, "TINA_K")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = e.svc.GetByID(ctx, 999)
	assert.Equal(t, account.ErrNotFound, errors.Cause(err))
}

func TestService_Authenticate(t *testing.T) {
	e := setup(t)
	acc := testutil.CreateAccount(t, e.repo, "tina", "Tina")

	tests := []struct {
		name    string
		creds   account.Credentials
		wantErr error
	}{
		{name: "unknown username", creds: account.Credentials{Username: "lol", Password: testutil.Password}, wantErr: account.ErrInvalidCredentials},
		{name: "wrong password", creds: account.Credentials{Username: "tina", Password: "lol"}, wantErr: account.ErrInvalidCredentials},
		{name: "valid", creds: account.Credentials{Username: "tina", Password: testutil.Password}},
		{name: "username is case insensitive", creds: account.Credentials{Username: "TINA", Password: testutil.Password}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.svc.Authenticate(context.Background(), tt.creds)
			if err != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				assert.Equal(t, acc.ID, got.ID)
			}
		})
	}
}

func TestService_ChangePassword(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	acc := testutil.CreateAccount(t, e.repo, "tina", "Tina", "tina@test.cd")
	other := testutil.CreateAccount(t, e.repo, "omar", "Omar")

	var tokens []session.Token
	for i := 0; i < 2; i++ {
		tok, err := e.sessions.Issue(ctx, acc.ID)
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	otherTok, err := e.sessions.Issue(ctx, other.ID)
	require.NoError(t, err)

	t.Run("wrong current password", func(t *testing.T) {
		_, err := e.svc.ChangePassword(ctx, account.PasswordChange{Username: "tina", Password: "lol", NewPassword: "brand new pass"})
		assert.Equal(t, account.ErrInvalidCredentials, err)
		_, err = e.sessions.Validate(ctx, tokens[0].Value)
		assert.NoError(t, err)
		assert.Empty(t, e.mailSvc.Sent())
	})

	revoked, err := e.svc.ChangePassword(ctx, account.PasswordChange{Username: "tina", Password: testutil.Password, NewPassword: "brand new pass"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	for _, tok := range tokens {
		_, err := e.sessions.Validate(ctx, tok.Value)
		assert.Equal(t, core.ErrUnauthorized, err)
	}
	_, err = e.sessions.Validate(ctx, otherTok.Value)
	assert.NoError(t, err)

	_, err = e.svc.Authenticate(ctx, account.Credentials{Username: "tina", Password: testutil.Password})
	assert.Equal(t, account.ErrInvalidCredentials, err)
	_, err = e.svc.Authenticate(ctx, account.Credentials{Username: "tina", Password: "brand new pass"})
	assert.NoError(t, err)

	sent := e.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "tina@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "tina")

	t.Run("reset", func(t *testing.T) {
		tok, err := e.sessions.Issue(ctx, acc.ID)
		require.NoError(t, err)

		revoked, err := e.svc.ResetPassword(ctx, "tina", "reset by admin")
		require.NoError(t, err)
		assert.Equal(t, int64(1), revoked)
		_, err = e.sessions.Validate(ctx, tok.Value)
		assert.Equal(t, core.ErrUnauthorized, err)

		_, err = e.svc.ResetPassword(ctx, "lol", "reset by admin")
		assert.Equal(t, account.ErrNotFound, errors.Cause(err))
	})

	t.Run("no email, no notification", func(t *testing.T) {
		_, err := e.svc.ResetPassword(ctx, "omar", "reset by admin")
		require.NoError(t, err)
		assert.Len(t, e.mailSvc.Sent(), 2)
	})
}

func TestService_SetEmail(t *testing.T) {
	e := setup(t)
	acc := testutil.CreateAccount(t, e.repo, "tina", "Tina")

	got, err := e.svc.SetEmail(context.Background(), acc.ID, account.EmailUpdate{Email: "tina@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "tina@test.cd", got.Email)
	assert.True(t, !got.UpdatedAt.Before(acc.UpdatedAt))
}
