package repo

import (
	"context"
	"strings"

	"projecthub/internal/domain"
)

const timeEntryColumns = `e.id,e.task_id,t.project_id,e.user_id,e.date,e.hours,e.billable,e.hourly_rate,COALESCE(e.description,''),e.created_at,e.updated_at`

func scanTimeEntry(row scanner) (domain.TimeEntry, error) {
	var e domain.TimeEntry
	var billable int
	err := row.Scan(&e.ID, &e.TaskID, &e.ProjectID, &e.UserID, &e.Date, &e.Hours, &billable, &e.HourlyRate, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	e.Billable = billable != 0
	return e, err
}

func (r Repo) GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	e, err := scanTimeEntry(r.Q.QueryRowContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries e JOIN tasks t ON t.id=e.task_id WHERE e.id=?`, id))
	if err != nil {
		return e, notFound("time entry", id, err)
	}
	return e, nil
}

func (r Repo) ListTimeEntries(ctx context.Context, f domain.TimeEntryFilter) ([]domain.TimeEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "t.project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "e.task_id=?")
		args = append(args, f.TaskID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "e.user_id=?")
		args = append(args, f.UserID)
	}
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries e JOIN tasks t ON t.id=e.task_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.date, e.created_at, e.id"
	rows, err := r.Q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list time entries", err)
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, storageErr("scan time entry", err)
		}
		res = append(res, e)
	}
	return res, storageErr("list time entries", rows.Err())
}

func (r Repo) CreateTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	_, err := r.Q.ExecContext(ctx, `INSERT INTO time_entries(id,task_id,user_id,date,hours,billable,hourly_rate,description,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, e.UserID, e.Date, e.Hours, boolInt(e.Billable), e.HourlyRate, nullable(e.Description), e.CreatedAt, e.UpdatedAt)
	return storageErr("insert time entry", err)
}

func (r Repo) UpdateTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	res, err := r.Q.ExecContext(ctx, `UPDATE time_entries SET date=?, hours=?, billable=?, hourly_rate=?, description=?, updated_at=? WHERE id=?`,
		e.Date, e.Hours, boolInt(e.Billable), e.HourlyRate, nullable(e.Description), e.UpdatedAt, e.ID)
	if err != nil {
		return storageErr("update time entry", err)
	}
	return requireAffected(res, "time entry", e.ID)
}

func (r Repo) DeleteTimeEntry(ctx context.Context, id string) error {
	res, err := r.Q.ExecContext(ctx, `DELETE FROM time_entries WHERE id=?`, id)
	if err != nil {
		return storageErr("delete time entry", err)
	}
	return requireAffected(res, "time entry", id)
}
