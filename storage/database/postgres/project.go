package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/codeabode/backend/core"
	"github.com/codeabode/backend/core/build"
	"github.com/codeabode/backend/core/project"
)

type projectRow struct {
	ID           int         `db:"id"`
	SubmissionID int         `db:"submission_id"`
	AccountID    int         `db:"account_id"`
	Author       string      `db:"author"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	DeployMethod string      `db:"deploy_method"`
	Status       string      `db:"status"`
	BuildLog     null.String `db:"build_log"`
	Views        int         `db:"views"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r projectRow) project() project.Project {
	return project.Project{
		ID:           r.ID,
		SubmissionID: r.SubmissionID,
		AccountID:    r.AccountID,
		Author:       r.Author,
		Title:        r.Title,
		Description:  r.Description,
		DeployMethod: r.DeployMethod,
		Status:       r.Status,
		BuildLog:     r.BuildLog.Ptr(),
		Views:        r.Views,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

var projectColumns = []string{
	"p.id", "p.submission_id", "p.account_id", "a.username AS author", "p.title", "p.description",
	"p.deploy_method", "p.status", "p.views", "p.created_at", "p.updated_at",
}

type projectRepository struct {
	baseRepo
}

var (
	_ project.Repository = (*projectRepository)(nil) // interface compliance check
	_ build.Store        = (*projectRepository)(nil)
)

func NewProjectRepository(exec core.DBExecutor) *projectRepository {
	return &projectRepository{baseRepo{exec: exec}}
}

func (repo projectRepository) InsertOwnedProject(ctx context.Context, accountID int, np project.NewProject, now time.Time, exec ...core.DBExecutor) (project.Project, bool, error) {
	q := `
WITH latest AS (
    SELECT s.id
    FROM submissions s
    JOIN classes c ON c.id = s.class_id
    WHERE s.class_id = $1 AND s.work_type = $2 AND ` + ownedStudent("c.student_id", "$3") + `
    ORDER BY s.id DESC
    LIMIT 1
), ins AS (
    INSERT INTO projects (submission_id, account_id, title, description, deploy_method, status, created_at, updated_at)
    SELECT id, $3, $4, $5, $6, 'pending', $7, $7 FROM latest
    RETURNING id, submission_id, account_id, title, description, deploy_method, status, build_log, views, created_at, updated_at
)
SELECT ins.*, a.username AS author
FROM ins
JOIN accounts a ON a.id = ins.account_id`

	var row projectRow
	err := repo.getExec(exec).GetContext(ctx, &row, q,
		np.ClassID, np.WorkType, accountID, np.Title, np.Description, np.DeployMethod, now)
	if err != nil {
		if isNoRows(err) {
			return project.Project{}, false, nil
		}
		return project.Project{}, false, errors.Wrap(err, "inserting project")
	}
	return row.project(), true, nil
}

func (repo projectRepository) QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]project.Project, error) {
	query := psql.Select(projectColumns...).
		From("projects p").
		Join("accounts a ON a.id = p.account_id")

	if filter != nil {
		// projects with Title or Description matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"p.title": val}, sq.ILike{"p.description": val}})
		}
		if filter.Status != "" {
			query = query.Where(sq.Eq{"p.status": filter.Status})
		}
		if filter.DeployMethod != "" {
			query = query.Where(sq.Eq{"p.deploy_method": filter.DeployMethod})
		}
		if filter.AuthorID != 0 {
			query = query.Where(sq.Eq{"p.account_id": filter.AuthorID})
		}
	}

	if len(ordering) == 0 {
		query = query.OrderBy("p.id DESC")
	}
	for _, ord := range ordering {
		query = query.OrderBy("p." + ord.String())
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building projects query")
	}
	var rows []projectRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting projects")
	}
	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.project())
	}
	return projects, nil
}

func (repo projectRepository) GetProject(ctx context.Context, id, viewerID int, exec ...core.DBExecutor) (project.Project, error) {
	query := psql.Select(projectColumns...).
		Column(sq.Expr(`CASE WHEN EXISTS (
    SELECT 1 FROM submissions s
    JOIN classes c ON c.id = s.class_id
    JOIN student_owners so ON so.student_id = c.student_id
    WHERE s.id = p.submission_id AND so.account_id = ?
) THEN p.build_log END AS build_log`, viewerID)).
		From("projects p").
		Join("accounts a ON a.id = p.account_id").
		Where(sq.Eq{"p.id": id})

	q, args, err := query.ToSql()
	if err != nil {
		return project.Project{}, errors.Wrap(err, "building project query")
	}
	var row projectRow
	if err := repo.getExec(exec).GetContext(ctx, &row, q, args...); err != nil {
		if isNoRows(err) {
			return project.Project{}, project.ErrNotFound
		}
		return project.Project{}, errors.Wrap(err, "getting project")
	}
	return row.project(), nil
}

func (repo projectRepository) IncrementViews(ctx context.Context, id int, exec ...core.DBExecutor) (bool, error) {
	res, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE projects SET views = views + 1 WHERE id = $1 AND status = 'ready'`, id)
	if err != nil {
		return false, errors.Wrap(err, "incrementing views")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo projectRepository) LockProjectStatus(ctx context.Context, id int, exec ...core.DBExecutor) (string, error) {
	var status string
	if err := repo.getExec(exec).GetContext(ctx, &status, `SELECT status FROM projects WHERE id = $1 FOR UPDATE`, id); err != nil {
		if isNoRows(err) {
			return "", project.ErrNotFound
		}
		return "", errors.Wrap(err, "locking project")
	}
	return status, nil
}

func (repo projectRepository) ResetForRebuild(ctx context.Context, id int, now time.Time, exec ...core.DBExecutor) (bool, error) {
	res, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE projects SET status = 'pending', build_log = NULL, updated_at = $2 WHERE id = $1 AND status = 'failed'`,
		id, now)
	if err != nil {
		return false, errors.Wrap(err, "resetting project")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo projectRepository) GetDeployMethod(ctx context.Context, id int, exec ...core.DBExecutor) (string, string, error) {
	var row struct {
		DeployMethod string `db:"deploy_method"`
		Status       string `db:"status"`
	}
	if err := repo.getExec(exec).GetContext(ctx, &row, `SELECT deploy_method, status FROM projects WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return "", "", project.ErrNotFound
		}
		return "", "", errors.Wrap(err, "getting deploy method")
	}
	return row.DeployMethod, row.Status, nil
}

// build.Store

func (repo projectRepository) LoadBuildJob(ctx context.Context, projectID int) (build.Job, error) {
	var row struct {
		ProjectID    int    `db:"id"`
		DeployMethod string `db:"deploy_method"`
		Work         string `db:"work"`
	}
	err := repo.exec.GetContext(ctx, &row, `
SELECT p.id, p.deploy_method, s.work
FROM projects p
JOIN submissions s ON s.id = p.submission_id
WHERE p.id = $1`, projectID)
	if err != nil {
		if isNoRows(err) {
			return build.Job{}, build.ErrNotFound
		}
		return build.Job{}, errors.Wrap(err, "loading build job")
	}
	return build.Job{ProjectID: row.ProjectID, DeployMethod: row.DeployMethod, Work: row.Work}, nil
}

func (repo projectRepository) FinishBuild(ctx context.Context, projectID int, status, buildLog string, now time.Time) (bool, error) {
	res, err := repo.exec.ExecContext(ctx,
		`UPDATE projects SET status = $2, build_log = $3, updated_at = $4 WHERE id = $1 AND status = 'pending'`,
		projectID, status, null.NewString(buildLog, buildLog != ""), now)
	if err != nil {
		return false, errors.Wrap(err, "finishing build")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (repo projectRepository) PendingBuilds(ctx context.Context) ([]int, error) {
	var ids []int
	if err := repo.exec.SelectContext(ctx, &ids, `SELECT id FROM projects WHERE status = 'pending' ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "selecting pending builds")
	}
	return ids, nil
}
