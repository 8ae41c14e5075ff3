package repo

import (
	"context"
	"database/sql"

	"projecthub/internal/domain"
)

const checklistColumns = `id,task_id,text,completed,completed_by,completed_at,position`

func scanChecklistItem(row scanner) (domain.ChecklistItem, error) {
	var item domain.ChecklistItem
	var completed int
	var by, at sql.NullString
	if err := row.Scan(&item.ID, &item.TaskID, &item.Text, &completed, &by, &at, &item.Position); err != nil {
		return item, err
	}
	item.Completed = completed != 0
	item.CompletedBy = stringPtr(by)
	item.CompletedAt = stringPtr(at)
	return item, nil
}

func (r Repo) queryChecklist(ctx context.Context, query string, args ...any) ([]domain.ChecklistItem, error) {
	rows, err := r.Q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list checklist", err)
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		item, err := scanChecklistItem(rows)
		if err != nil {
			return nil, storageErr("scan checklist item", err)
		}
		res = append(res, item)
	}
	return res, storageErr("list checklist", rows.Err())
}

func (r Repo) GetChecklistItem(ctx context.Context, id string) (domain.ChecklistItem, error) {
	item, err := scanChecklistItem(r.Q.QueryRowContext(ctx, `SELECT `+checklistColumns+` FROM task_checklist_items WHERE id=?`, id))
	if err != nil {
		return item, notFound("checklist item", id, err)
	}
	return item, nil
}

func (r Repo) CreateChecklistItem(ctx context.Context, item domain.ChecklistItem) error {
	_, err := r.Q.ExecContext(ctx, `INSERT INTO task_checklist_items(`+checklistColumns+`) VALUES (?,?,?,?,?,?,?)`,
		item.ID, item.TaskID, item.Text, boolInt(item.Completed), nullableStringPtr(item.CompletedBy), nullableStringPtr(item.CompletedAt), item.Position)
	return storageErr("insert checklist item", err)
}

func (r Repo) UpdateChecklistItem(ctx context.Context, item domain.ChecklistItem) error {
	res, err := r.Q.ExecContext(ctx, `UPDATE task_checklist_items SET text=?, completed=?, completed_by=?, completed_at=?, position=? WHERE id=?`,
		item.Text, boolInt(item.Completed), nullableStringPtr(item.CompletedBy), nullableStringPtr(item.CompletedAt), item.Position, item.ID)
	if err != nil {
		return storageErr("update checklist item", err)
	}
	return requireAffected(res, "checklist item", item.ID)
}

func (r Repo) DeleteChecklistItem(ctx context.Context, id string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM task_checklist_items WHERE id=?`, id)
	if err != nil {
		return storageErr("delete checklist item", err)
	}
	return requireAffected(res, "checklist item", id)
}
