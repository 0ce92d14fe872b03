package build

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeabode/backend/core"
	logsvc "github.com/codeabode/backend/services/logger"
)

type memStore struct {
	mu       sync.Mutex
	jobs     map[int]Job
	pending  map[int]bool
	finished map[int]Result
}

func newMemStore(jobs ...Job) *memStore {
	s := &memStore{jobs: make(map[int]Job), pending: make(map[int]bool), finished: make(map[int]Result)}
	for _, j := range jobs {
		s.jobs[j.ProjectID] = j
		s.pending[j.ProjectID] = true
	}
	return s
}

func (s *memStore) LoadBuildJob(_ context.Context, projectID int) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[projectID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

func (s *memStore) FinishBuild(_ context.Context, projectID int, status, buildLog string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending[projectID] {
		return false, nil
	}
	s.pending[projectID] = false
	s.finished[projectID] = Result{Status: status, Log: buildLog}
	return true, nil
}

func (s *memStore) PendingBuilds(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, p := range s.pending {
		if p {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) result(projectID int) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.finished[projectID]
	return res, ok
}

// shellTool runs script with sh; the workspace is $0.
func shellTool(script string) core.BuildTool {
	return core.BuildTool{Program: "sh", Args: []string{"-c", script}, EntryFile: "main.py", OutputDir: "out"}
}

func newTestBuilder(t *testing.T, store Store, timeout time.Duration, reg prometheus.Registerer) *Builder {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
	b, err := NewBuilder(core.BuildConfig{
		WorkspaceRoot: t.TempDir(),
		Timeout:       timeout,
		Tools: map[string]core.BuildTool{
			"copy":    shellTool(`mkdir -p "$0/out" && cp "$0/main.py" "$0/out/index.html"`),
			"broken":  shellTool(`echo "SyntaxError: invalid syntax" >&2; exit 1`),
			"silent":  shellTool(`exit 3`),
			"nothing": shellTool(`true`),
			"slow":    shellTool(`sleep 10`),
			"noisy":   shellTool(`head -c 1100000 /dev/zero | tr '\0' 'a'; exit 1`),
			"clean":   shellTool(`test ! -e "$0/stale" && touch "$0/stale" && mkdir -p "$0/out"`),
		},
	}, store, logsvc.NewNopLogger(), NewMetrics(reg))
	require.NoError(t, err)
	return b
}

func TestBuilder_Build(t *testing.T) {
	jobs := []Job{
		{ProjectID: 1, DeployMethod: "copy", Work: "print('hi')"},
		{ProjectID: 2, DeployMethod: "broken", Work: "print("},
		{ProjectID: 3, DeployMethod: "silent"},
		{ProjectID: 4, DeployMethod: "nothing"},
		{ProjectID: 5, DeployMethod: "flash"},
		{ProjectID: 6, DeployMethod: "noisy"},
	}
	store := newMemStore(jobs...)
	reg := prometheus.NewRegistry()
	b := newTestBuilder(t, store, 10*time.Second, reg)

	tests := []struct {
		name       string
		projectID  int
		wantStatus string
		wantLog    string // substring
	}{
		{name: "ready", projectID: 1, wantStatus: StatusReady},
		{name: "tool error", projectID: 2, wantStatus: StatusFailed, wantLog: "SyntaxError: invalid syntax"},
		{name: "tool error without output", projectID: 3, wantStatus: StatusFailed, wantLog: "sh: exit status 3"},
		{name: "no artifact", projectID: 4, wantStatus: StatusFailed, wantLog: "expected output directory out was not produced"},
		{name: "unsupported deploy method", projectID: 5, wantStatus: StatusFailed, wantLog: `unsupported deploy method "flash"`},
		{name: "log is capped", projectID: 6, wantStatus: StatusFailed, wantLog: "[output truncated]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Build(context.Background(), tt.projectID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Contains(t, res.Log, tt.wantLog)

			stored, ok := store.result(tt.projectID)
			require.True(t, ok)
			assert.Equal(t, res, stored)
		})
	}

	t.Run("artifact", func(t *testing.T) {
		dir, ok := b.Artifact(1, "copy")
		require.True(t, ok)
		body, err := os.ReadFile(filepath.Join(dir, "index.html"))
		require.NoError(t, err)
		assert.Equal(t, "print('hi')", string(body))

		_, ok = b.Artifact(1, "flash")
		assert.False(t, ok)
	})

	t.Run("no workspace for unsupported methods", func(t *testing.T) {
		_, err := os.Stat(b.Workspace(5))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("log size", func(t *testing.T) {
		res, _ := store.result(6)
		assert.LessOrEqual(t, len(res.Log), maxLogBytes+len("\n[output truncated]"))
	})

	t.Run("metrics", func(t *testing.T) {
		assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.builds.WithLabelValues("copy", StatusReady)))
		assert.Equal(t, float64(1), testutil.ToFloat64(b.metrics.builds.WithLabelValues("broken", StatusFailed)))
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := b.Build(context.Background(), 999)
		assert.Equal(t, ErrNotFound, errors.Cause(err))
	})

	t.Run("finished projects are left alone", func(t *testing.T) {
		require.NoError(t, b.Finish(context.Background(), 1, Result{Status: StatusFailed, Log: "late"}))
		res, _ := store.result(1)
		assert.Equal(t, StatusReady, res.Status)
	})
}

func TestBuilder_timeout(t *testing.T) {
	store := newMemStore(Job{ProjectID: 1, DeployMethod: "slow"})
	b := newTestBuilder(t, store, 200*time.Millisecond, prometheus.NewRegistry())

	start := time.Now()
	res, err := b.Build(context.Background(), 1)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Log, "build timed out after 200ms"), res.Log)
}

func TestBuilder_cancelled(t *testing.T) {
	store := newMemStore(Job{ProjectID: 1, DeployMethod: "slow"})
	b := newTestBuilder(t, store, 10*time.Second, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := b.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Log, "build cancelled")
}

func TestBuilder_cleanWorkspace(t *testing.T) {
	store := newMemStore(Job{ProjectID: 1, DeployMethod: "clean"})
	b := newTestBuilder(t, store, 10*time.Second, prometheus.NewRegistry())

	// the tool fails if it finds what the previous attempt left behind
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := b.Run(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, StatusReady, res.Status, "attempt %d: %s", attempt, res.Log)
	}
	_, err := os.Stat(filepath.Join(b.Workspace(1), "stale"))
	assert.NoError(t, err)
}

func TestBuilder_Supports(t *testing.T) {
	b, err := NewBuilder(core.BuildConfig{WorkspaceRoot: t.TempDir()}, newMemStore(), logsvc.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.True(t, b.Supports("pygbag"))
	assert.False(t, b.Supports("PYGBAG"))
	assert.False(t, b.Supports(""))
}

func Test_cappedBuffer(t *testing.T) {
	buf := &cappedBuffer{max: 5}
	n, err := buf.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = buf.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	_, _ = buf.Write([]byte("ij"))
	assert.Equal(t, "abcde\n[output truncated]", buf.String())
}

func Test_cappedBuffer_copy(t *testing.T) {
	buf := &cappedBuffer{max: 10}
	src := io.LimitReader(strings.NewReader(strings.Repeat("x", 100000)), 100000)

	n, err := io.Copy(buf, src)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), n)
	assert.Equal(t, 10, buf.Len())
	assert.True(t, buf.truncated)

	cmd := exec.Command("sh", "-c", "head -c 100000 /dev/zero")
	out := &cappedBuffer{max: 10}
	cmd.Stdout = out
	require.NoError(t, cmd.Run())
	assert.Equal(t, 10, out.Len())
	assert.True(t, out.truncated)
}
