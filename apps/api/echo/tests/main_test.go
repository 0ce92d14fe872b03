package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/codeabode/backend/apps/api/echo"
	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/account"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/forum"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/session"
	"github.com/codeabode/backend/core/student"
	"github.com/codeabode/backend/core/submission"
	"github.com/codeabode/backend/services/email"
	"github.com/codeabode/backend/services/logger"
	"github.com/codeabode/backend/storage/database/inmem"
	"github.com/codeabode/backend/tests"
)

var errUnauthorized = httpErr{Error: "unauthorized"}

type projectStore interface {
	project.Repository
	build.Store
}

type testEnv struct {
	app        Server
	conf       *core.Config
	accRepo    account.Repository
	stuRepo    student.Repository
	accessRepo access.Repository
	subRepo    submission.Repository
	projRepo   projectStore
	sessions   *session.Manager
	builder    *build.Builder
	queue      *build.Queue
	mailSvc    *emailsvc.ConsoleServiceMock
	shutdowns  int32 // times the server asked to be shut down
}

// setup builds a server on a fresh in-memory store. The build queue is never started,
// so submitted projects stay pending.
func setup(t *testing.T) *testEnv {
	t.Helper()
	conf := testutil.Config(t)
	logger := logsvc.NewNopLogger()

	db := inmemdb.Open()
	env := &testEnv{
		conf:       conf,
		accRepo:    inmemdb.NewAccountRepository(db),
		stuRepo:    inmemdb.NewStudentRepository(db),
		accessRepo: inmemdb.NewAccessRepository(db),
		subRepo:    inmemdb.NewSubmissionRepository(db),
		projRepo:   inmemdb.NewProjectRepository(db),
		sessions:   session.NewManager(conf, inmemdb.NewSessionRepository(db)),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf, logger),
	}

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	gate := access.NewGate(env.accessRepo, db)

	builder, err := build.NewBuilder(conf.Builder, env.projRepo, logger, nil)
	require.NoError(t, err)
	env.builder = builder
	queue := build.NewQueue(builder, conf.Builder, logger, nil)
	env.queue = queue
	t.Cleanup(func() { _ = queue.Shutdown(context.Background()) })

	env.app = NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Accounts:       account.NewService(conf, env.accRepo, db, env.sessions, env.mailSvc),
		Sessions:       env.sessions,
		Students:       student.NewService(env.stuRepo, gate),
		Ledger:         submission.NewLedger(env.subRepo),
		Forum:          forum.NewService(inmemdb.NewForumRepository(db)),
		Projects:       project.NewService(env.projRepo, gate, queue, builder, logger),
		Artifacts:      builder,
		Registry:       prometheus.NewRegistry(),
		DisableReqLogs: true,
		SignalShutdown: func() { atomic.AddInt32(&env.shutdowns, 1) },
	})
	return env
}

func (env *testEnv) token(t *testing.T, acc account.Account) string {
	t.Helper()
	tok, err := env.sessions.Issue(context.Background(), acc.ID)
	require.NoError(t, err)
	return tok.Value
}

func (env *testEnv) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (env *testEnv) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodPost
			}
			rec := env.do(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func marshallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
