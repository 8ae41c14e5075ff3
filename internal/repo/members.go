package repo

import (
	"context"

	"projecthub/internal/domain"
)

func (r Repo) GetMember(ctx context.Context, projectID, userID string) (domain.ProjectMember, error) {
	var m domain.ProjectMember
	err := r.Q.QueryRowContext(ctx, `SELECT project_id,user_id,role,joined_at FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).
		Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return m, notFound("member", projectID+"/"+userID, err)
	}
	return m, nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.Q.QueryContext(ctx, `SELECT project_id,user_id,role,joined_at FROM project_members WHERE project_id=? ORDER BY joined_at, user_id`, projectID)
	if err != nil {
		return nil, storageErr("list members", err)
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, storageErr("scan member", err)
		}
		res = append(res, m)
	}
	return res, storageErr("list members", rows.Err())
}

// UpsertMember inserts the membership or replaces its role. The original
// join time is kept.
func (r Repo) UpsertMember(ctx context.Context, m domain.ProjectMember) error {
	_, err := r.Q.ExecContext(ctx, `INSERT INTO project_members(project_id,user_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role, m.JoinedAt)
	return storageErr("upsert member", err)
}

func (r Repo) DeleteMember(ctx context.Context, projectID, userID string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return storageErr("delete member", err)
	}
	return requireAffected(res, "member", projectID+"/"+userID)
}
