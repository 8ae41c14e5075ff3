// Package events appends audit rows in the caller's transaction.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"projecthub/internal/db"
	"projecthub/internal/domain"
)

// Event types written by the engine.
const (
	ProjectCreated     = "project.created"
	ProjectUpdated     = "project.updated"
	ProjectDeleted     = "project.deleted"
	ProjectStageChange = "project.stage_changed"
	MemberAdded        = "member.added"
	MemberRoleChanged  = "member.role_changed"
	MemberRemoved      = "member.removed"
	TaskCreated        = "task.created"
	TaskUpdated        = "task.updated"
	TaskDeleted        = "task.deleted"
	TaskBlocked        = "task.blocked"
	TaskUnblocked      = "task.unblocked"
	DependencyAdded    = "dependency.added"
	DependencyRemoved  = "dependency.removed"
	ChecklistChanged   = "checklist.changed"
	TimeLogged         = "time.logged"
	TimeEntryUpdated   = "time.updated"
	TimeEntryDeleted   = "time.deleted"
)

type Writer struct {
	Now func() time.Time
}

// Append inserts r through q, which is normally the caller's transaction.
func (w Writer) Append(ctx context.Context, q db.Querier, r domain.EventRecord) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	payload := r.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, r.Type, nullable(r.ProjectID), r.EntityKind, nullable(r.EntityID), r.ActorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
