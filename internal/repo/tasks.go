package repo

import (
	"context"
	"database/sql"
	"strings"

	"projecthub/internal/domain"
)

const taskColumns = `id,project_id,parent_id,title,COALESCE(description,''),status,priority,assignee_id,start_date,due_date,estimated_hours,blocked_by,block_reason,blocked_at,status_before_block,created_by,created_at,updated_at,completed_at`

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var parentID, assigneeID, startDate, dueDate, blockedBy, blockReason, blockedAt, before, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &parentID, &t.Title, &t.Description, &t.Status, &t.Priority, &assigneeID,
		&startDate, &dueDate, &t.EstimatedHours, &blockedBy, &blockReason, &blockedAt, &before, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return t, err
	}
	t.ParentID = stringPtr(parentID)
	t.AssigneeID = stringPtr(assigneeID)
	t.CompletedAt = stringPtr(completedAt)
	if t.StartDate, err = timePtr(startDate); err != nil {
		return t, err
	}
	if t.DueDate, err = timePtr(dueDate); err != nil {
		return t, err
	}
	if blockedBy.Valid {
		t.Block = &domain.BlockInfo{
			BlockedBy:      blockedBy.String,
			Reason:         blockReason.String,
			BlockedAt:      blockedAt.String,
			PreviousStatus: domain.TaskStatus(before.String),
		}
	}
	return t, nil
}

func blockArgs(b *domain.BlockInfo) (any, any, any, any) {
	if b == nil {
		return nil, nil, nil, nil
	}
	return b.BlockedBy, b.Reason, nullable(b.BlockedAt), nullable(string(b.PreviousStatus))
}

func (r Repo) CreateTask(ctx context.Context, t domain.Task) error {
	by, reason, at, before := blockArgs(t.Block)
	_, err := r.Q.ExecContext(ctx, `INSERT INTO tasks(`+strings.ReplaceAll(taskColumns, "COALESCE(description,'')", "description")+`)
VALUES (`+placeholders(19)+`)`,
		t.ID, t.ProjectID, nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.AssigneeID), nullableTime(t.StartDate), nullableTime(t.DueDate), t.EstimatedHours,
		by, reason, at, before, t.CreatedBy, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return storageErr("insert task", err)
}

// UpdateTask writes every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, t domain.Task) error {
	by, reason, at, before := blockArgs(t.Block)
	res, err := r.Q.ExecContext(ctx, `UPDATE tasks SET parent_id=?, title=?, description=?, status=?, priority=?, assignee_id=?,
start_date=?, due_date=?, estimated_hours=?, blocked_by=?, block_reason=?, blocked_at=?, status_before_block=?,
updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.AssigneeID),
		nullableTime(t.StartDate), nullableTime(t.DueDate), t.EstimatedHours, by, reason, at, before,
		t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return storageErr("update task", err)
	}
	return requireAffected(res, "task", t.ID)
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return storageErr("delete task", err)
	}
	return requireAffected(res, "task", id)
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.Q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, notFound("task", id, err)
	}
	tasks := []domain.Task{t}
	if err := r.attach(ctx, tasks, `task_id=?`, id); err != nil {
		return t, err
	}
	return tasks[0], nil
}

func (r Repo) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.Q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("scan task", err)
		}
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tasks", err)
	}
	if len(res) == 0 {
		return res, nil
	}
	if err := r.attach(ctx, res, `task_id IN (SELECT id FROM tasks`+where+`)`, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// attach loads dependency edges and checklist items for tasks. cond selects
// rows by task_id.
func (r Repo) attach(ctx context.Context, tasks []domain.Task, cond string, args ...any) error {
	idx := make(map[string]int, len(tasks))
	for i := range tasks {
		idx[tasks[i].ID] = i
	}
	deps, err := r.queryDependencies(ctx, `SELECT task_id,depends_on_id,type,created_at FROM task_dependencies WHERE `+cond+` ORDER BY created_at, depends_on_id`, args...)
	if err != nil {
		return err
	}
	for _, d := range deps {
		i, ok := idx[d.TaskID]
		if !ok {
			continue
		}
		tasks[i].Dependencies = append(tasks[i].Dependencies, d)
		tasks[i].DependsOn = append(tasks[i].DependsOn, d.DependsOnID)
	}
	items, err := r.queryChecklist(ctx, `SELECT `+checklistColumns+` FROM task_checklist_items WHERE `+cond+` ORDER BY position, id`, args...)
	if err != nil {
		return err
	}
	for _, item := range items {
		if i, ok := idx[item.TaskID]; ok {
			tasks[i].Checklist = append(tasks[i].Checklist, item)
		}
	}
	return nil
}

func (r Repo) queryDependencies(ctx context.Context, query string, args ...any) ([]domain.Dependency, error) {
	rows, err := r.Q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list dependencies", err)
	}
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		var d domain.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &d.Type, &d.CreatedAt); err != nil {
			return nil, storageErr("scan dependency", err)
		}
		res = append(res, d)
	}
	return res, storageErr("list dependencies", rows.Err())
}

// ListDependencies returns every edge whose dependent task is in projectID.
func (r Repo) ListDependencies(ctx context.Context, projectID string) ([]domain.Dependency, error) {
	return r.queryDependencies(ctx, `SELECT d.task_id,d.depends_on_id,d.type,d.created_at
FROM task_dependencies d JOIN tasks t ON t.id=d.task_id
WHERE t.project_id=? ORDER BY d.created_at, d.task_id, d.depends_on_id`, projectID)
}

func (r Repo) CreateDependency(ctx context.Context, d domain.Dependency) error {
	_, err := r.Q.ExecContext(ctx, `INSERT INTO task_dependencies(task_id,depends_on_id,type,created_at) VALUES (?,?,?,?)`,
		d.TaskID, d.DependsOnID, d.Type, d.CreatedAt)
	return storageErr("insert dependency", err)
}

func (r Repo) DeleteDependency(ctx context.Context, taskID, dependsOnID string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id=? AND depends_on_id=?`, taskID, dependsOnID)
	if err != nil {
		return storageErr("delete dependency", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return &domain.DependencyNotFoundError{TaskID: taskID, DependsOnID: dependsOnID}
	}
	return nil
}
