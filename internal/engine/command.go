package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"projecthub/internal/domain"
)

// Command is one workflow action as it arrives from an outer surface.
// Payload holds the JSON form of the matching options struct.
type Command struct {
	Action    domain.Action   `json:"action"`
	ActorID   string          `json:"actor_id"`
	ProjectID string          `json:"project_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type taskRef struct {
	TaskID string `json:"task_id"`
}

type memberRef struct {
	UserID string `json:"user_id"`
}

type checklistCommand struct {
	TaskID    string  `json:"task_id,omitempty"`
	ItemID    string  `json:"item_id,omitempty"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Delete    bool    `json:"delete,omitempty"`
}

type timeEntryCommand struct {
	TimeEntryUpdateOptions
	Delete bool `json:"delete,omitempty"`
}

func decode(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("payload", "%v", err)
	}
	return nil
}

// inScope checks that the entity a command targets lives in the command's
// project. Commands without a project are not scoped.
func (e Engine) inScope(ctx context.Context, cmd Command, field string, projectOf func(context.Context) (string, error)) error {
	if cmd.ProjectID == "" {
		return nil
	}
	projectID, err := projectOf(ctx)
	if err != nil {
		return err
	}
	if projectID != cmd.ProjectID {
		return domain.Invalid(field, "belongs to project %s, not %s", projectID, cmd.ProjectID)
	}
	return nil
}

func (e Engine) taskInScope(ctx context.Context, cmd Command, taskID string) error {
	return e.inScope(ctx, cmd, "task_id", func(ctx context.Context) (string, error) {
		return e.projectOfTask(ctx, taskID)
	})
}

func (e Engine) itemInScope(ctx context.Context, cmd Command, itemID string) error {
	return e.inScope(ctx, cmd, "item_id", func(ctx context.Context) (string, error) {
		_, projectID, err := e.projectOfItem(ctx, itemID)
		return projectID, err
	})
}

func (e Engine) entryInScope(ctx context.Context, cmd Command, entryID string) error {
	return e.inScope(ctx, cmd, "id", func(ctx context.Context) (string, error) {
		entry, err := e.Store.GetTimeEntry(ctx, entryID)
		return entry.ProjectID, err
	})
}

// Perform dispatches a command to the typed operation for its action. The
// result is whatever that operation returns.
func (e Engine) Perform(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Action {
	case domain.ActionCreateTask:
		var opts TaskCreateOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		switch {
		case opts.ProjectID == "":
			opts.ProjectID = cmd.ProjectID
		case cmd.ProjectID != "" && opts.ProjectID != cmd.ProjectID:
			return nil, domain.Invalid("project_id", "must match the command's project %s", cmd.ProjectID)
		}
		return e.CreateTask(ctx, opts)
	case domain.ActionEditTask:
		var opts TaskUpdateOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		if err := e.taskInScope(ctx, cmd, opts.ID); err != nil {
			return nil, err
		}
		return e.UpdateTask(ctx, opts)
	case domain.ActionAssignTask:
		var p struct {
			TaskID     string `json:"task_id"`
			AssigneeID string `json:"assignee_id"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
			return nil, err
		}
		return e.UpdateTask(ctx, TaskUpdateOptions{ID: p.TaskID, AssigneeID: &p.AssigneeID, ActorID: cmd.ActorID})
	case domain.ActionApproveTask:
		var p taskRef
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
			return nil, err
		}
		done := domain.TaskDone
		return e.UpdateTask(ctx, TaskUpdateOptions{ID: p.TaskID, Status: &done, ActorID: cmd.ActorID})
	case domain.ActionDeleteTask:
		var p taskRef
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
			return nil, err
		}
		return nil, e.DeleteTask(ctx, cmd.ActorID, p.TaskID)
	case domain.ActionBlockTask:
		var opts BlockOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		if err := e.taskInScope(ctx, cmd, opts.TaskID); err != nil {
			return nil, err
		}
		return e.BlockTask(ctx, opts)
	case domain.ActionUnblockTask:
		var p taskRef
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
			return nil, err
		}
		return e.UnblockTask(ctx, cmd.ActorID, p.TaskID)
	case domain.ActionAddDependency, domain.ActionRemoveDependency:
		var opts DependencyOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		if err := e.taskInScope(ctx, cmd, opts.TaskID); err != nil {
			return nil, err
		}
		if cmd.Action == domain.ActionRemoveDependency {
			return nil, e.RemoveDependency(ctx, opts)
		}
		added, err := e.AddDependency(ctx, opts)
		return map[string]bool{"added": added}, err
	case domain.ActionManageChecklist:
		var p checklistCommand
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if p.ItemID == "" {
			if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
				return nil, err
			}
		} else if err := e.itemInScope(ctx, cmd, p.ItemID); err != nil {
			return nil, err
		}
		switch {
		case p.ItemID == "":
			text := ""
			if p.Text != nil {
				text = *p.Text
			}
			return e.AddChecklistItem(ctx, ChecklistAddOptions{TaskID: p.TaskID, Text: text, ActorID: cmd.ActorID})
		case p.Delete:
			return nil, e.DeleteChecklistItem(ctx, cmd.ActorID, p.ItemID)
		default:
			return e.SetChecklistItem(ctx, ChecklistSetOptions{ItemID: p.ItemID, Text: p.Text, Completed: p.Completed, ActorID: cmd.ActorID})
		}
	case domain.ActionLogTime:
		var opts TimeLogOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		if err := e.taskInScope(ctx, cmd, opts.TaskID); err != nil {
			return nil, err
		}
		return e.LogTime(ctx, opts)
	case domain.ActionManageTimeEntries:
		var p timeEntryCommand
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if err := e.entryInScope(ctx, cmd, p.ID); err != nil {
			return nil, err
		}
		if p.Delete {
			return nil, e.DeleteTimeEntry(ctx, cmd.ActorID, p.ID)
		}
		p.TimeEntryUpdateOptions.ActorID = cmd.ActorID
		return e.UpdateTimeEntry(ctx, p.TimeEntryUpdateOptions)
	case domain.ActionTransitionStage:
		var opts StageTransitionOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		opts.ProjectID = cmd.ProjectID
		return e.TransitionStage(ctx, opts)
	case domain.ActionEditProject, domain.ActionSetInvestment:
		var opts ProjectUpdateOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		opts.ID = cmd.ProjectID
		return e.UpdateProject(ctx, opts)
	case domain.ActionDeleteProject:
		return nil, e.DeleteProject(ctx, cmd.ActorID, cmd.ProjectID)
	case domain.ActionInviteMember, domain.ActionChangeMemberRole:
		var opts MemberOptions
		if err := decode(cmd.Payload, &opts); err != nil {
			return nil, err
		}
		opts.ActorID = cmd.ActorID
		opts.ProjectID = cmd.ProjectID
		if cmd.Action == domain.ActionInviteMember {
			return e.AddMember(ctx, opts)
		}
		return e.ChangeMemberRole(ctx, opts)
	case domain.ActionRemoveMember:
		var p memberRef
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		return nil, e.RemoveMember(ctx, cmd.ActorID, cmd.ProjectID, p.UserID)
	case domain.ActionViewAnalytics:
		var p taskRef
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		if p.TaskID != "" {
			if err := e.taskInScope(ctx, cmd, p.TaskID); err != nil {
				return nil, err
			}
			return e.EstimateTask(ctx, cmd.ActorID, p.TaskID)
		}
		return e.Conflicts(ctx, cmd.ActorID, cmd.ProjectID)
	case domain.ActionExportData:
		f := domain.EventFilter{}
		var p struct {
			Type    string `json:"type,omitempty"`
			AfterID int64  `json:"after_id,omitempty"`
			Limit   int    `json:"limit,omitempty"`
		}
		if err := decode(cmd.Payload, &p); err != nil {
			return nil, err
		}
		f.ProjectID, f.Type, f.AfterID, f.Limit = cmd.ProjectID, p.Type, p.AfterID, p.Limit
		return e.Events(ctx, cmd.ActorID, f)
	}
	return nil, domain.Invalid("action", "unknown action %q", cmd.Action)
}
