package project

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/build"
)

var (
	ErrNotFound            = errors.New("project not found")
	ErrAlreadyBuilt        = errors.New("project is already built")
	ErrUnsupportedDeploy   = errors.New("unsupported deploy method")
	unsupportedDeployField = core.FieldError{Field: "deploy_method", Error: ErrUnsupportedDeploy.Error()}

	NowFunc = time.Now // mockable
)

// OrderingFields are the gallery fields a client may order by.
var OrderingFields = map[string]bool{
	"id":         true,
	"title":      true,
	"views":      true,
	"created_at": true,
	"updated_at": true,
}

type (
	Repository interface {
		// InsertOwnedProject creates a pending project from the latest submission of the class and work type,
		// only if the account owns the class's student, in a single statement. ok is false when nothing was inserted.
		InsertOwnedProject(ctx context.Context, accountID int, np NewProject, now time.Time, exec ...core.DBExecutor) (p Project, ok bool, err error)
		QueryProjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Project, error)
		// GetProject fills BuildLog only when viewerID owns the project's student.
		GetProject(ctx context.Context, id, viewerID int, exec ...core.DBExecutor) (Project, error)
		// IncrementViews only counts views of ready projects. ok is false when nothing was counted.
		IncrementViews(ctx context.Context, id int, exec ...core.DBExecutor) (bool, error)
		// LockProjectStatus reads the status, locking the row until exec's transaction ends.
		LockProjectStatus(ctx context.Context, id int, exec ...core.DBExecutor) (string, error)
		// ResetForRebuild moves a failed project back to pending and clears its log.
		ResetForRebuild(ctx context.Context, id int, now time.Time, exec ...core.DBExecutor) (bool, error)
		GetDeployMethod(ctx context.Context, id int, exec ...core.DBExecutor) (method, status string, err error)
	}

	Scheduler interface {
		Enqueue(projectID int) error
	}

	ToolRegistry interface {
		Supports(method string) bool
	}

	Service struct {
		repo   Repository
		gate   *access.Gate
		queue  Scheduler
		tools  ToolRegistry
		logger core.Logger
	}
)

func NewService(repo Repository, gate *access.Gate, queue Scheduler, tools ToolRegistry, logger core.Logger) *Service {
	return &Service{repo: repo, gate: gate, queue: queue, tools: tools, logger: logger}
}

// Submit publishes the latest submission of a class as a project and schedules its build.
// It returns as soon as the project is recorded; the build outcome is read back later.
func (svc *Service) Submit(ctx context.Context, accountID int, np NewProject) (Submitted, error) {
	if !svc.tools.Supports(np.DeployMethod) {
		return Submitted{}, core.NewValidationError(ErrUnsupportedDeploy, unsupportedDeployField)
	}

	p, ok, err := svc.repo.InsertOwnedProject(ctx, accountID, np, NowFunc().UTC())
	if err != nil {
		return Submitted{}, errors.Wrap(err, "inserting project")
	}
	if !ok {
		return Submitted{}, core.ErrUnauthorized
	}

	res := Submitted{ID: p.ID, Status: build.StatusPending}
	switch err := svc.queue.Enqueue(p.ID); errors.Cause(err) {
	case nil:
	case build.ErrQueueFull:
		res.Status = build.StatusFailed
	case build.ErrShutdown:
		// the project stays pending and is recovered on the next start
		return Submitted{}, err
	default:
		// still pending; picked up again when the queue recovers pending builds
		svc.logger.Warn(fmt.Sprintf("enqueueing build of project %d: %v", p.ID, err), err)
	}
	return res, nil
}

func (svc *Service) List(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error) {
	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, o := range ordering {
		if OrderingFields[o.Field] {
			ords = append(ords, o)
		}
	}
	projects, err := svc.repo.QueryProjects(ctx, filter, ords)
	if err != nil {
		return nil, errors.Wrap(err, "querying projects")
	}
	if projects == nil {
		projects = []Project{}
	}
	for i := range projects {
		projects[i].BuildLog = nil
		projects[i].setURL()
	}
	return projects, nil
}

// Get returns one project. The build log is only visible to the project's owners.
func (svc *Service) Get(ctx context.Context, viewerID, id int) (Project, error) {
	p, err := svc.repo.GetProject(ctx, id, viewerID)
	if err != nil {
		return Project{}, err
	}
	p.setURL()
	return p, nil
}

// View counts one view of a ready project.
func (svc *Service) View(ctx context.Context, id int) error {
	ok, err := svc.repo.IncrementViews(ctx, id)
	if err != nil {
		return errors.Wrap(err, "incrementing views")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Rebuild starts a new build attempt of a failed project the account owns.
func (svc *Service) Rebuild(ctx context.Context, accountID, id int) (Submitted, error) {
	err := svc.gate.Guard(ctx, accountID, access.Project(id), func(exec core.DBExecutor) error {
		return svc.reset(ctx, id, exec)
	})
	if err != nil {
		return Submitted{}, err
	}
	return svc.schedule(id)
}

// ForceRebuild is the administrative rebuild; it skips the ownership check.
func (svc *Service) ForceRebuild(ctx context.Context, id int, tx core.Transactor) (Submitted, error) {
	err := tx.InTx(ctx, func(exec core.DBExecutor) error {
		return svc.reset(ctx, id, exec)
	})
	if err != nil {
		return Submitted{}, err
	}
	return svc.schedule(id)
}

func (svc *Service) reset(ctx context.Context, id int, exec core.DBExecutor) error {
	status, err := svc.repo.LockProjectStatus(ctx, id, exec)
	if err != nil {
		return err
	}
	switch status {
	case build.StatusPending:
		return build.ErrInProgress
	case build.StatusReady:
		return ErrAlreadyBuilt
	}
	ok, err := svc.repo.ResetForRebuild(ctx, id, NowFunc().UTC(), exec)
	if err != nil {
		return errors.Wrap(err, "resetting project")
	}
	if !ok {
		// another rebuild reset it first
		return build.ErrInProgress
	}
	return nil
}

func (svc *Service) schedule(id int) (Submitted, error) {
	if err := svc.queue.Enqueue(id); err != nil {
		if cause := errors.Cause(err); cause == build.ErrQueueFull || cause == build.ErrShutdown {
			return Submitted{}, err
		}
		svc.logger.Warn(fmt.Sprintf("enqueueing rebuild of project %d: %v", id, err), err)
	}
	return Submitted{ID: id, Status: build.StatusPending}, nil
}

// Artifact returns the deploy method of a ready project, for serving its files.
func (svc *Service) Artifact(ctx context.Context, id int) (string, error) {
	method, status, err := svc.repo.GetDeployMethod(ctx, id)
	if err != nil {
		return "", err
	}
	if status != build.StatusReady {
		return "", ErrNotFound
	}
	return method, nil
}
