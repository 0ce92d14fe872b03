package build

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
)

// Runner executes and persists build attempts. *Builder is the production Runner.
type Runner interface {
	Run(ctx context.Context, projectID int) (Result, error)
	Finish(ctx context.Context, projectID int, res Result) error
}

// Queue runs builds on a fixed pool of workers, detached from any request.
// At most one build per project is queued or running at any time.
type Queue struct {
	runner  Runner
	logger  core.Logger
	metrics *Metrics
	workers int

	jobs     chan int
	mu       sync.Mutex
	inflight map[int]struct{}
	closed   bool
	started  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(runner Runner, conf core.BuildConfig, logger core.Logger, metrics *Metrics) *Queue {
	workers := conf.Workers
	if workers < 1 {
		workers = 1
	}
	size := conf.QueueSize
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
		workers:  workers,
		jobs:     make(chan int, size),
		inflight: make(map[int]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers. It is a no-op when already started.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Enqueue schedules a build of a pending project.
// It returns ErrInProgress when the project is already queued or running, and ErrQueueFull
// when no slot is free; in the latter case the project is marked failed so it never stays pending.
func (q *Queue) Enqueue(projectID int) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrShutdown
	}
	if _, ok := q.inflight[projectID]; ok {
		q.mu.Unlock()
		return ErrInProgress
	}
	select {
	case q.jobs <- projectID:
		q.inflight[projectID] = struct{}{}
		q.metrics.setQueued(len(q.jobs))
		q.mu.Unlock()
		return nil
	default:
		q.mu.Unlock()
	}

	if err := q.runner.Finish(q.ctx, projectID, Result{Status: StatusFailed, Log: ErrQueueFull.Error()}); err != nil {
		q.logger.Error(fmt.Sprintf("marking project %d failed: %v", projectID, err), err)
	}
	return ErrQueueFull
}

// Running reports whether a build of the project is queued or running.
func (q *Queue) Running(projectID int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inflight[projectID]
	return ok
}

func (q *Queue) work() {
	defer q.wg.Done()
	for id := range q.jobs {
		q.metrics.setQueued(len(q.jobs))
		q.metrics.addRunning(1)
		q.runOne(id)
		q.metrics.addRunning(-1)
	}
}

func (q *Queue) runOne(projectID int) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Errorf("panic: %v", r)
			q.logger.Error(fmt.Sprintf("build of project %d panicked", projectID), err)
			q.release(projectID)
			q.finish(projectID, Result{Status: StatusFailed, Log: "internal error"})
		}
	}()

	res, err := q.runner.Run(q.ctx, projectID)
	// the workspace is free once the tool has exited; the project still reads pending
	// until the result is persisted, so a rebuild request in between is refused upstream.
	q.release(projectID)
	if err != nil {
		q.logger.Error(fmt.Sprintf("build of project %d: %v", projectID, err), err)
		if errors.Cause(err) == ErrNotFound {
			return
		}
		res = Result{Status: StatusFailed, Log: "internal error"}
	}
	q.finish(projectID, res)
}

func (q *Queue) release(projectID int) {
	q.mu.Lock()
	delete(q.inflight, projectID)
	q.mu.Unlock()
}

func (q *Queue) finish(projectID int, res Result) {
	// persist even if the queue is shutting down
	if err := q.runner.Finish(context.Background(), projectID, res); err != nil {
		q.logger.Error(fmt.Sprintf("finishing build of project %d: %v", projectID, err), err)
	}
}

// Recover re-enqueues projects left pending by a previous run.
func (q *Queue) Recover(ctx context.Context, store Store) (int, error) {
	ids, err := store.PendingBuilds(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing pending builds")
	}
	var n int
	for _, id := range ids {
		switch err := q.Enqueue(id); err {
		case nil:
			n++
		case ErrInProgress:
		default:
			q.logger.Warn(fmt.Sprintf("re-enqueueing project %d: %v", id, err))
		}
	}
	return n, nil
}

// Shutdown stops accepting builds and waits for queued ones to finish.
// When ctx expires first, running tools are killed and their projects marked failed.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		q.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
