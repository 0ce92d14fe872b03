package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/access"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/project"
)

type projectRepository struct {
	db *DB
}

var (
	_ project.Repository = (*projectRepository)(nil) // interface compliance check
	_ build.Store        = (*projectRepository)(nil)
)

func NewProjectRepository(db *DB) *projectRepository {
	return &projectRepository{db: db}
}

// read must be called with mu held.
func (repo *projectRepository) read(p *project.Project) project.Project {
	res := *p
	res.Author = repo.db.username(p.AccountID)
	if p.BuildLog != nil {
		l := *p.BuildLog
		res.BuildLog = &l
	}
	return res
}

func (repo *projectRepository) InsertOwnedProject(_ context.Context, accountID int, np project.NewProject, now time.Time, _ ...core.DBExecutor) (project.Project, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if !repo.db.owns(accountID, access.KindClass, np.ClassID) {
		return project.Project{}, false, nil
	}
	sub, ok := repo.db.latest(np.ClassID, np.WorkType)
	if !ok {
		return project.Project{}, false, nil
	}
	p := &project.Project{
		ID:           repo.db.nextID("projects"),
		SubmissionID: sub.ID,
		AccountID:    accountID,
		Title:        np.Title,
		Description:  np.Description,
		DeployMethod: np.DeployMethod,
		Status:       build.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	repo.db.projects[p.ID] = p
	return repo.read(p), true, nil
}

func (repo *projectRepository) QueryProjects(_ context.Context, filter *project.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]project.Project, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	projects := make([]project.Project, 0, len(repo.db.projects))
	for _, p := range repo.db.projects {
		if filter != nil && !matches(p, filter) {
			continue
		}
		projects = append(projects, repo.read(p))
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id"}}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareProjects(projects[i], projects[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return projects, nil
}

func matches(p *project.Project, filter *project.QueryFilter) bool {
	if filter.Search != "" {
		kw := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Title), kw) && !strings.Contains(strings.ToLower(p.Description), kw) {
			return false
		}
	}
	if filter.Status != "" && p.Status != filter.Status {
		return false
	}
	if filter.DeployMethod != "" && p.DeployMethod != filter.DeployMethod {
		return false
	}
	if filter.AuthorID != 0 && p.AccountID != filter.AuthorID {
		return false
	}
	return true
}

func compareProjects(a, b project.Project, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "views":
		return a.Views - b.Views
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.ID - b.ID
	}
}

func (repo *projectRepository) GetProject(_ context.Context, id, viewerID int, _ ...core.DBExecutor) (project.Project, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	res := repo.read(p)
	if !repo.db.owns(viewerID, access.KindProject, id) {
		res.BuildLog = nil
	}
	return res, nil
}

func (repo *projectRepository) IncrementViews(_ context.Context, id int, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.projects[id]
	if !ok || p.Status != build.StatusReady {
		return false, nil
	}
	p.Views++
	return true, nil
}

func (repo *projectRepository) LockProjectStatus(_ context.Context, id int, _ ...core.DBExecutor) (string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.projects[id]
	if !ok {
		return "", project.ErrNotFound
	}
	return p.Status, nil
}

func (repo *projectRepository) ResetForRebuild(_ context.Context, id int, now time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.projects[id]
	if !ok || p.Status != build.StatusFailed {
		return false, nil
	}
	p.Status = build.StatusPending
	p.BuildLog = nil
	p.UpdatedAt = now
	return true, nil
}

func (repo *projectRepository) GetDeployMethod(_ context.Context, id int, _ ...core.DBExecutor) (string, string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.projects[id]
	if !ok {
		return "", "", project.ErrNotFound
	}
	return p.DeployMethod, p.Status, nil
}

func (repo *projectRepository) LoadBuildJob(_ context.Context, projectID int) (build.Job, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.projects[projectID]
	if !ok {
		return build.Job{}, build.ErrNotFound
	}
	sub, ok := repo.db.submission(p.SubmissionID)
	if !ok {
		return build.Job{}, build.ErrNotFound
	}
	return build.Job{ProjectID: p.ID, DeployMethod: p.DeployMethod, Work: sub.Work}, nil
}

func (repo *projectRepository) FinishBuild(_ context.Context, projectID int, status, buildLog string, now time.Time) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.projects[projectID]
	if !ok || p.Status != build.StatusPending {
		return false, nil
	}
	p.Status = status
	p.BuildLog = nil
	if buildLog != "" {
		p.BuildLog = &buildLog
	}
	p.UpdatedAt = now
	return true, nil
}

func (repo *projectRepository) PendingBuilds(_ context.Context) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids []int
	for id, p := range repo.db.projects {
		if p.Status == build.StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
