// Package build turns submitted work into a runnable web artifact with an external tool.
//
// A project build moves pending -> ready or pending -> failed exactly once per attempt.
// Each project owns the workspace <root>/<project id>, which is wiped at the start of every attempt.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

// Statuses
const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

// maxLogBytes caps the tool output kept in the build log.
const maxLogBytes = 1 << 20

var (
	ErrNotFound   = errors.New("project not found")
	ErrInProgress = errors.New("build already in progress")
	ErrQueueFull  = errors.New("build queue is full")
	ErrShutdown   = core.NewShutdownError("build queue is shut down")

	NowFunc = time.Now // mockable
)

// Job is what a build needs to know about a project.
type Job struct {
	ProjectID    int
	DeployMethod string
	Work         string
}

// Result is the terminal outcome of one build attempt.
type Result struct {
	Status string
	Log    string // empty when ready
}

type Store interface {
	LoadBuildJob(ctx context.Context, projectID int) (Job, error)
	// FinishBuild persists a terminal state, only if the project is still pending.
	FinishBuild(ctx context.Context, projectID int, status, buildLog string, now time.Time) (bool, error)
	// PendingBuilds lists projects waiting for a build, oldest first.
	PendingBuilds(ctx context.Context) ([]int, error)
}

type Builder struct {
	root    string
	timeout time.Duration
	tools   map[string]core.BuildTool
	store   Store
	logger  core.Logger
	metrics *Metrics
}

func NewBuilder(conf core.BuildConfig, store Store, logger core.Logger, metrics *Metrics) (*Builder, error) {
	root, err := filepath.Abs(conf.WorkspaceRoot)
	if err != nil {
		return nil, errors.Wrap(err, "resolving workspace root")
	}
	tools := conf.Tools
	if tools == nil {
		tools = core.DefaultBuildTools()
	}
	return &Builder{
		root:    root,
		timeout: conf.Timeout,
		tools:   tools,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Supports reports whether a deploy method has a registered tool.
func (b *Builder) Supports(method string) bool {
	_, ok := b.tools[method]
	return ok
}

// Workspace returns the workspace directory of a project.
func (b *Builder) Workspace(projectID int) string {
	return filepath.Join(b.root, strconv.Itoa(projectID))
}

// Artifact returns the directory holding the built files of a project.
func (b *Builder) Artifact(projectID int, deployMethod string) (string, bool) {
	tool, ok := b.tools[deployMethod]
	if !ok {
		return "", false
	}
	return filepath.Join(b.Workspace(projectID), tool.OutputDir), true
}

// Build runs one attempt and persists its outcome.
func (b *Builder) Build(ctx context.Context, projectID int) (Result, error) {
	res, err := b.Run(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	return res, b.Finish(ctx, projectID, res)
}

// Run executes one attempt without persisting it.
// The returned error is for failures to load the job; build failures are reported in Result.
func (b *Builder) Run(ctx context.Context, projectID int) (Result, error) {
	job, err := b.store.LoadBuildJob(ctx, projectID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading build job")
	}
	attempt := uuid.NewString()
	start := time.Now()
	b.logger.Info(fmt.Sprintf("build %s: project %d (%s) started", attempt, projectID, job.DeployMethod))

	res := b.run(ctx, job)

	b.metrics.observe(job.DeployMethod, res.Status, time.Since(start))
	b.logger.Info(fmt.Sprintf("build %s: project %d %s in %s", attempt, projectID, res.Status, time.Since(start).Round(time.Millisecond)))
	return res, nil
}

func failed(format string, args ...interface{}) Result {
	return Result{Status: StatusFailed, Log: fmt.Sprintf(format, args...)}
}

func (b *Builder) run(ctx context.Context, job Job) Result {
	tool, ok := b.tools[job.DeployMethod]
	if !ok {
		return failed("unsupported deploy method %q", job.DeployMethod)
	}

	dir := b.Workspace(job.ProjectID)
	if err := os.RemoveAll(dir); err != nil {
		return failed("cleaning workspace: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed("creating workspace: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tool.EntryFile), []byte(job.Work), 0o644); err != nil {
		return failed("writing %s: %v", tool.EntryFile, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	args := append(append([]string{}, tool.Args...), dir)
	cmd := exec.CommandContext(runCtx, tool.Program, args...)
	cmd.Dir = dir
	killProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	out := &cappedBuffer{max: maxLogBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return failed("build timed out after %s\n%s", b.timeout, out.String())
	case ctx.Err() != nil:
		return failed("build cancelled\n%s", out.String())
	case err != nil:
		if out.Len() == 0 {
			return failed("%s: %v", tool.Program, err)
		}
		return failed("%s", out.String())
	}

	outDir := filepath.Join(dir, tool.OutputDir)
	if fi, err := os.Stat(outDir); err != nil || !fi.IsDir() {
		return failed("expected output directory %s was not produced\n%s", tool.OutputDir, out.String())
	}
	return Result{Status: StatusReady}
}

// Finish persists the outcome of an attempt. A project that is no longer pending is left alone.
func (b *Builder) Finish(ctx context.Context, projectID int, res Result) error {
	ok, err := b.store.FinishBuild(ctx, projectID, res.Status, res.Log, NowFunc().UTC())
	if err != nil {
		return errors.Wrap(err, "persisting build result")
	}
	if !ok {
		b.logger.Warn(fmt.Sprintf("build of project %d finished but project was no longer pending", projectID))
	}
	return nil
}

// cappedBuffer keeps the first max bytes written and silently drops the rest.
// Write is its only way in, so io.Copy cannot bypass the cap through ReadFrom.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room < len(p) {
		if room > 0 {
			c.buf.Write(p[:room])
		}
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) Len() int { return c.buf.Len() }

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n[output truncated]"
	}
	return c.buf.String()
}
