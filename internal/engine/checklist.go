package engine

import (
	"context"
	"strings"

	"projecthub/internal/domain"
	"projecthub/internal/events"
)

type ChecklistAddOptions struct {
	TaskID  string `json:"task_id"`
	Text    string `json:"text"`
	ActorID string `json:"-"`
}

func (e Engine) AddChecklistItem(ctx context.Context, opts ChecklistAddOptions) (domain.ChecklistItem, error) {
	text := strings.TrimSpace(opts.Text)
	if text == "" {
		return domain.ChecklistItem{}, domain.Invalid("text", "is required")
	}
	projectID, err := e.projectOfTask(ctx, opts.TaskID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	var item domain.ChecklistItem
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionManageChecklist); err != nil {
			return err
		}
		t, err := r.GetTask(ctx, opts.TaskID)
		if err != nil {
			return err
		}
		position := 0
		for _, existing := range t.Checklist {
			if existing.Position >= position {
				position = existing.Position + 1
			}
		}
		item = domain.ChecklistItem{ID: e.newID(), TaskID: t.ID, Text: text, Position: position}
		if err := r.CreateChecklistItem(ctx, item); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ChecklistChanged, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"op": "add", "item_id": item.ID, "text": text},
		})
	})
	return item, err
}

type ChecklistSetOptions struct {
	ItemID    string  `json:"item_id"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	ActorID   string  `json:"-"`
}

func (e Engine) projectOfItem(ctx context.Context, itemID string) (domain.ChecklistItem, string, error) {
	item, err := e.Store.GetChecklistItem(ctx, itemID)
	if err != nil {
		return item, "", err
	}
	projectID, err := e.projectOfTask(ctx, item.TaskID)
	return item, projectID, err
}

// SetChecklistItem edits an item's text or ticks it off.
func (e Engine) SetChecklistItem(ctx context.Context, opts ChecklistSetOptions) (domain.ChecklistItem, error) {
	if opts.Text == nil && opts.Completed == nil {
		return domain.ChecklistItem{}, domain.Invalid("", "nothing to update")
	}
	if opts.Text != nil && strings.TrimSpace(*opts.Text) == "" {
		return domain.ChecklistItem{}, domain.Invalid("text", "must not be empty")
	}
	_, projectID, err := e.projectOfItem(ctx, opts.ItemID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	var item domain.ChecklistItem
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionManageChecklist); err != nil {
			return err
		}
		var err error
		item, err = r.GetChecklistItem(ctx, opts.ItemID)
		if err != nil {
			return err
		}
		payload := map[string]any{"op": "set", "item_id": item.ID}
		if opts.Text != nil {
			item.Text = strings.TrimSpace(*opts.Text)
			payload["text"] = item.Text
		}
		if opts.Completed != nil && *opts.Completed != item.Completed {
			item.Completed = *opts.Completed
			if item.Completed {
				by, at := opts.ActorID, e.stamp()
				item.CompletedBy, item.CompletedAt = &by, &at
			} else {
				item.CompletedBy, item.CompletedAt = nil, nil
			}
			payload["completed"] = item.Completed
		}
		if err := r.UpdateChecklistItem(ctx, item); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ChecklistChanged, ProjectID: projectID, EntityKind: "task", EntityID: item.TaskID, ActorID: opts.ActorID,
			Payload: payload,
		})
	})
	return item, err
}

func (e Engine) DeleteChecklistItem(ctx context.Context, actorID, itemID string) error {
	_, projectID, err := e.projectOfItem(ctx, itemID)
	if err != nil {
		return err
	}
	return e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, actorID, domain.ActionManageChecklist); err != nil {
			return err
		}
		item, err := r.GetChecklistItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := r.DeleteChecklistItem(ctx, itemID); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ChecklistChanged, ProjectID: projectID, EntityKind: "task", EntityID: item.TaskID, ActorID: actorID,
			Payload: map[string]any{"op": "delete", "item_id": itemID},
		})
	})
}
