package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"projecthub/internal/db"
	"projecthub/internal/domain"
	"projecthub/internal/events"
)

// Repo implements domain.Repositories over any Querier, so the same code
// serves plain reads and transactional writes.
type Repo struct {
	Q      db.Querier
	Events events.Writer
}

var _ domain.Repositories = Repo{}

type scanner interface {
	Scan(dest ...any) error
}

// storageErr classifies a driver error. Constraint failures are caller
// mistakes; everything else is treated as the store being unavailable.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"), strings.Contains(msg, "PRIMARY KEY"):
		return &domain.ValidationError{Reason: fmt.Sprintf("%s: already exists", op)}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &domain.ValidationError{Reason: fmt.Sprintf("%s: referenced record missing or still in use", op)}
	case strings.Contains(msg, "CHECK constraint failed"):
		return &domain.ValidationError{Reason: fmt.Sprintf("%s: %s", op, msg)}
	}
	return &domain.StorageError{Op: op, Err: err}
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return storageErr("get "+kind, err)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", ns.String, err)
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const projectColumns = `id,title,COALESCE(description,''),stage,owner_id,seeking_investment,completion_percent,version,created_at,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var seeking int
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Stage, &p.OwnerID, &seeking, &p.CompletionPercent, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	p.SeekingInvestment = seeking != 0
	return p, err
}

func (r Repo) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.Q.ExecContext(ctx, `INSERT INTO projects(id,title,description,stage,owner_id,seeking_investment,completion_percent,version,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), p.Stage, p.OwnerID, boolInt(p.SeekingInvestment), p.CompletionPercent, p.Version, p.CreatedAt, p.UpdatedAt)
	return storageErr("insert project", err)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.Q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, notFound("project", id, err)
	}
	return p, nil
}

// ListProjects returns every project, or only those memberID belongs to.
func (r Repo) ListProjects(ctx context.Context, memberID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if memberID != "" {
		query += ` WHERE id IN (SELECT project_id FROM project_members WHERE user_id=?)`
		args = append(args, memberID)
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.Q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list projects", err)
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, storageErr("scan project", err)
		}
		res = append(res, p)
	}
	return res, storageErr("list projects", rows.Err())
}

func (r Repo) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) error {
	var (
		fields []string
		args   []any
	)
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.Stage != nil {
		fields = append(fields, "stage=?")
		args = append(args, *patch.Stage)
	}
	if patch.SeekingInvestment != nil {
		fields = append(fields, "seeking_investment=?")
		args = append(args, boolInt(*patch.SeekingInvestment))
	}
	if patch.CompletionPercent != nil {
		fields = append(fields, "completion_percent=?")
		args = append(args, *patch.CompletionPercent)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, r.now().UTC().Format(time.RFC3339), id)
	res, err := r.Q.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return storageErr("update project", err)
	}
	return requireAffected(res, "project", id)
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return storageErr("delete project", err)
	}
	return requireAffected(res, "project", id)
}

func (r Repo) now() time.Time {
	if r.Events.Now != nil {
		return r.Events.Now()
	}
	return time.Now()
}
