package project_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/project"
	"github.com/codeabode/backend/core/submission"
	logsvc "github.com/codeabode/backend/services/logger"
	inmemdb "github.com/codeabode/backend/storage/database/inmem"
	"github.com/codeabode/backend/tests"
)

type env struct {
	svc     *project.Service
	builder *build.Builder
	queue   *build.Queue
	tx      core.Transactor
	repo    project.Repository
	gate    *access.Gate
	tina    int
	omar    int
	classID int
}

// setup publishes nothing yet; the class has one project submission owned by tina.
func setup(t *testing.T, conf core.BuildConfig) env {
	db := inmemdb.Open()
	accRepo := inmemdb.NewAccountRepository(db)
	stuRepo := inmemdb.NewStudentRepository(db)
	accessRepo := inmemdb.NewAccessRepository(db)
	projRepo := inmemdb.NewProjectRepository(db)
	logger := logsvc.NewNopLogger()

	e := env{tx: db}
	e.tina = testutil.CreateAccount(t, accRepo, "tina", "Tina").ID
	e.omar = testutil.CreateAccount(t, accRepo, "omar", "Omar").ID
	ada := testutil.CreateStudent(t, stuRepo, "Ada")
	testutil.AddOwner(t, accessRepo, e.tina, ada.ID)
	e.classID = testutil.CreateClasses(t, stuRepo, ada.ID, "Snake")[0].ID

	_, err := submission.NewLedger(inmemdb.NewSubmissionRepository(db)).Submit(context.Background(), e.tina, submission.NewSubmission{
		ClassID: e.classID, WorkType: submission.TypeProject, Work: "<h1>snake</h1>",
	})
	require.NoError(t, err)

	e.builder, err = build.NewBuilder(conf, projRepo, logger, nil)
	require.NoError(t, err)
	e.queue = build.NewQueue(e.builder, conf, logger, nil)
	e.repo, e.gate = projRepo, access.NewGate(accessRepo, db)
	e.svc = project.NewService(e.repo, e.gate, e.queue, e.builder, logger)
	return e
}

func shellConf(t *testing.T, script string) core.BuildConfig {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
	return core.BuildConfig{
		WorkspaceRoot: t.TempDir(),
		Timeout:       10 * time.Second,
		Workers:       1,
		QueueSize:     1,
		Tools: map[string]core.BuildTool{
			"static": {Program: "sh", Args: []string{"-c", script}, EntryFile: "index.html", OutputDir: "site"},
		},
	}
}

func newProject(e env, title string) project.NewProject {
	return project.NewProject{ClassID: e.classID, WorkType: submission.TypeProject, Title: title, DeployMethod: "static"}
}

func waitStatus(t *testing.T, e env, id int, status string) project.Project {
	t.Helper()
	var p project.Project
	require.Eventually(t, func() bool {
		var err error
		p, err = e.svc.Get(context.Background(), e.tina, id)
		return err == nil && p.Status == status
	}, 5*time.Second, 20*time.Millisecond)
	return p
}

func TestService_buildLifecycle(t *testing.T) {
	e := setup(t, shellConf(t, `mkdir -p "$0/site" && cp "$0/index.html" "$0/site/"`))
	ctx := context.Background()
	e.queue.Start()
	defer func() { _ = e.queue.Shutdown(ctx) }()

	t.Run("rejected submissions", func(t *testing.T) {
		np := newProject(e, "Snake")
		np.DeployMethod = "flash"
		_, err := e.svc.Submit(ctx, e.tina, np)
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), err)
		assert.Equal(t, project.ErrUnsupportedDeploy, verr.Err)

		_, err = e.svc.Submit(ctx, e.omar, newProject(e, "Snake"))
		assert.Equal(t, core.ErrUnauthorized, err)

		np = newProject(e, "Snake")
		np.WorkType = submission.TypeHomework // nothing submitted
		_, err = e.svc.Submit(ctx, e.tina, np)
		assert.Equal(t, core.ErrUnauthorized, err)
	})

	sub, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake"))
	require.NoError(t, err)
	assert.Equal(t, build.StatusPending, sub.Status)

	p := waitStatus(t, e, sub.ID, build.StatusReady)
	assert.Equal(t, project.PlayURL(sub.ID), p.URL)
	assert.Nil(t, p.BuildLog)

	method, err := e.svc.Artifact(ctx, sub.ID)
	require.NoError(t, err)
	dir, ok := e.builder.Artifact(sub.ID, method)
	require.True(t, ok)
	body, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>snake</h1>", string(body))

	require.NoError(t, e.svc.View(ctx, sub.ID))
	require.NoError(t, e.svc.View(ctx, sub.ID))
	p, err = e.svc.Get(ctx, e.omar, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Views)

	_, err = e.svc.Rebuild(ctx, e.tina, sub.ID)
	assert.Equal(t, project.ErrAlreadyBuilt, errors.Cause(err))
}

func TestService_failedBuild(t *testing.T) {
	e := setup(t, shellConf(t, `echo "missing main loop" >&2; exit 1`))
	ctx := context.Background()
	e.queue.Start()
	defer func() { _ = e.queue.Shutdown(ctx) }()

	sub, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake"))
	require.NoError(t, err)

	p := waitStatus(t, e, sub.ID, build.StatusFailed)
	require.NotNil(t, p.BuildLog)
	assert.Contains(t, *p.BuildLog, "missing main loop")
	assert.Empty(t, p.URL)

	p, err = e.svc.Get(ctx, e.omar, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, p.BuildLog)

	_, err = e.svc.Artifact(ctx, sub.ID)
	assert.Equal(t, project.ErrNotFound, err)
	assert.Equal(t, project.ErrNotFound, e.svc.View(ctx, sub.ID))

	_, err = e.svc.Rebuild(ctx, e.omar, sub.ID)
	assert.Equal(t, core.ErrUnauthorized, err)

	again, err := e.svc.Rebuild(ctx, e.tina, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Submitted{ID: sub.ID, Status: build.StatusPending}, again)
	waitStatus(t, e, sub.ID, build.StatusFailed)
}

func TestService_queueFull(t *testing.T) {
	e := setup(t, shellConf(t, `mkdir -p "$0/site"`))
	ctx := context.Background()
	// workers never started: the single slot stays taken

	first, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake"))
	require.NoError(t, err)
	assert.Equal(t, build.StatusPending, first.Status)

	second, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake 2"))
	require.NoError(t, err)
	assert.Equal(t, build.StatusFailed, second.Status)

	p, err := e.svc.Get(ctx, e.tina, second.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StatusFailed, p.Status)
	if assert.NotNil(t, p.BuildLog) {
		assert.Equal(t, build.ErrQueueFull.Error(), *p.BuildLog)
	}

	_, err = e.svc.ForceRebuild(ctx, first.ID, e.tx)
	assert.Equal(t, build.ErrInProgress, errors.Cause(err))

	_, err = e.svc.Rebuild(ctx, e.tina, second.ID)
	assert.Equal(t, build.ErrQueueFull, errors.Cause(err))
}

func TestService_List(t *testing.T) {
	e := setup(t, shellConf(t, `mkdir -p "$0/site"`))
	ctx := context.Background()

	_, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake"))
	require.NoError(t, err)

	projects, err := e.svc.List(ctx, &project.QueryFilter{}, []core.DBOrdering{{Field: "build_log"}, {Field: "title"}})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "tina", projects[0].Author)

	projects, err = e.svc.List(ctx, &project.QueryFilter{Status: build.StatusReady}, nil)
	require.NoError(t, err)
	assert.NotNil(t, projects)
	assert.Empty(t, projects)
}

// staleStatus reports every project as failed, like a status read that lost a race with another rebuild.
type staleStatus struct {
	project.Repository
}

func (staleStatus) LockProjectStatus(context.Context, int, ...core.DBExecutor) (string, error) {
	return build.StatusFailed, nil
}

func TestService_Rebuild_lostRace(t *testing.T) {
	e := setup(t, shellConf(t, `mkdir -p "$0/site" && cp "$0/index.html" "$0/site/"`))
	ctx := context.Background()
	e.queue.Start()
	defer func() { _ = e.queue.Shutdown(ctx) }()

	sub, err := e.svc.Submit(ctx, e.tina, newProject(e, "Snake"))
	require.NoError(t, err)
	waitStatus(t, e, sub.ID, build.StatusReady)

	svc := project.NewService(staleStatus{e.repo}, e.gate, e.queue, e.builder, logsvc.NewNopLogger())
	_, err = svc.Rebuild(ctx, e.tina, sub.ID)
	assert.Equal(t, build.ErrInProgress, errors.Cause(err))
	_, err = svc.ForceRebuild(ctx, sub.ID, e.tx)
	assert.Equal(t, build.ErrInProgress, errors.Cause(err))

	p, err := e.svc.Get(ctx, e.tina, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, build.StatusReady, p.Status)
	_, err = os.Stat(filepath.Join(e.builder.Workspace(sub.ID), "site", "index.html"))
	assert.NoError(t, err, "the ready artifact is left alone")
}
