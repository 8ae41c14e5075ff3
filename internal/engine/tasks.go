package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"projecthub/internal/domain"
	"projecthub/internal/engine/auth"
	"projecthub/internal/engine/graph"
	"projecthub/internal/events"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID             string            `json:"id,omitempty"`
	ProjectID      string            `json:"project_id"`
	ParentID       string            `json:"parent_id,omitempty"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Status         domain.TaskStatus `json:"status,omitempty"`
	Priority       domain.Priority   `json:"priority,omitempty"`
	AssigneeID     string            `json:"assignee_id,omitempty"`
	StartDate      *time.Time        `json:"start_date,omitempty"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	EstimatedHours float64           `json:"estimated_hours,omitempty"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	ActorID        string            `json:"-"`
}

func validateSchedule(start, due *time.Time, hours float64) error {
	if start != nil && due != nil && due.Before(*start) {
		return domain.Invalid("due_date", "is before start_date")
	}
	if hours < 0 {
		return domain.Invalid("estimated_hours", "must not be negative")
	}
	return nil
}

// requireMember fails with a validation error when userID is not on the
// project.
func requireMember(ctx context.Context, r domain.Repositories, projectID, userID string) (domain.ProjectMember, error) {
	m, err := r.GetMember(ctx, projectID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return m, domain.Invalid("assignee_id", "%s is not a member of the project", userID)
	}
	return m, err
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, domain.Invalid("title", "is required")
	}
	if opts.ProjectID == "" {
		return domain.Task{}, domain.Invalid("project_id", "is required")
	}
	if opts.Status == "" {
		opts.Status = domain.TaskTodo
	}
	if opts.Status != domain.TaskTodo && opts.Status != domain.TaskBacklog {
		return domain.Task{}, domain.Invalid("status", "new tasks start in %s or %s", domain.TaskBacklog, domain.TaskTodo)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.IsValid() {
		return domain.Task{}, domain.Invalid("priority", "unknown priority %q", opts.Priority)
	}
	if err := validateSchedule(opts.StartDate, opts.DueDate, opts.EstimatedHours); err != nil {
		return domain.Task{}, err
	}
	actions := []domain.Action{domain.ActionCreateTask}
	if opts.AssigneeID != "" {
		actions = append(actions, domain.ActionAssignTask)
	}
	if len(opts.DependsOn) > 0 {
		actions = append(actions, domain.ActionAddDependency)
	}
	id := opts.ID
	if id == "" {
		id = e.newID()
	}
	now := e.stamp()
	t := domain.Task{
		ID:             id,
		ProjectID:      opts.ProjectID,
		Title:          title,
		Description:    opts.Description,
		Status:         opts.Status,
		Priority:       opts.Priority,
		StartDate:      opts.StartDate,
		DueDate:        opts.DueDate,
		EstimatedHours: opts.EstimatedHours,
		CreatedBy:      opts.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	box := outbox{actorID: opts.ActorID}
	err := e.Store.Atomic(ctx, opts.ProjectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, opts.ProjectID, opts.ActorID, actions...)
		if err != nil {
			return err
		}
		if opts.ParentID != "" {
			parent, err := r.GetTask(ctx, opts.ParentID)
			if err != nil {
				return err
			}
			if parent.ProjectID != opts.ProjectID {
				return domain.Invalid("parent_id", "parent task is in a different project")
			}
			t.ParentID = &parent.ID
		}
		if opts.AssigneeID != "" {
			if _, err := requireMember(ctx, r, opts.ProjectID, opts.AssigneeID); err != nil {
				return err
			}
			assignee := opts.AssigneeID
			t.AssigneeID = &assignee
		}
		if err := r.CreateTask(ctx, t); err != nil {
			return err
		}
		if len(opts.DependsOn) > 0 {
			deps, err := r.ListDependencies(ctx, opts.ProjectID)
			if err != nil {
				return err
			}
			g := graph.New(deps)
			for _, depID := range opts.DependsOn {
				dep, err := r.GetTask(ctx, depID)
				if err != nil {
					return err
				}
				if dep.ProjectID != opts.ProjectID {
					return domain.Invalid("depends_on", "task %s is in a different project", depID)
				}
				added, err := g.AddDependency(t.ID, depID, domain.DepMustComplete)
				if err != nil {
					return err
				}
				if !added {
					continue
				}
				d := domain.Dependency{TaskID: t.ID, DependsOnID: depID, Type: domain.DepMustComplete, CreatedAt: now}
				if err := r.CreateDependency(ctx, d); err != nil {
					return err
				}
				t.DependsOn = append(t.DependsOn, depID)
				t.Dependencies = append(t.Dependencies, d)
			}
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TaskCreated, ProjectID: opts.ProjectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"title": t.Title, "status": t.Status, "priority": t.Priority, "depends_on": t.DependsOn},
		}); err != nil {
			return err
		}
		if _, err := recomputeCompletion(ctx, r, a.Project); err != nil {
			return err
		}
		if t.AssigneeID != nil {
			box.add(*t.AssigneeID, NotifyTaskAssigned, "Task assigned",
				fmt.Sprintf("You were assigned %q", t.Title), taskLink(t.ProjectID, t.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.flush(ctx, &box)
	return t, nil
}

// projectOfTask returns the project a task belongs to, read outside any
// unit of work so the unit can be scoped.
func (e Engine) projectOfTask(ctx context.Context, taskID string) (string, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	return t.ProjectID, nil
}

func (e Engine) GetTask(ctx context.Context, actorID, taskID string) (domain.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if _, err := e.read(ctx, t.ProjectID, actorID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, actorID string, f domain.TaskFilter) ([]domain.Task, error) {
	if f.ProjectID == "" {
		return nil, domain.Invalid("project_id", "is required")
	}
	if _, err := e.read(ctx, f.ProjectID, actorID); err != nil {
		return nil, err
	}
	return e.Store.ListTasks(ctx, f)
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left alone;
// an empty AssigneeID or ParentID clears the field.
type TaskUpdateOptions struct {
	ID             string             `json:"id"`
	Title          *string            `json:"title,omitempty"`
	Description    *string            `json:"description,omitempty"`
	Priority       *domain.Priority   `json:"priority,omitempty"`
	Status         *domain.TaskStatus `json:"status,omitempty"`
	AssigneeID     *string            `json:"assignee_id,omitempty"`
	ParentID       *string            `json:"parent_id,omitempty"`
	StartDate      *time.Time         `json:"start_date,omitempty"`
	DueDate        *time.Time         `json:"due_date,omitempty"`
	ClearSchedule  bool               `json:"clear_schedule,omitempty"`
	EstimatedHours *float64           `json:"estimated_hours,omitempty"`
	ActorID        string             `json:"-"`
}

func (o TaskUpdateOptions) editsFields() bool {
	return o.Title != nil || o.Description != nil || o.Priority != nil || o.ParentID != nil ||
		o.StartDate != nil || o.DueDate != nil || o.ClearSchedule || o.EstimatedHours != nil
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Task{}, domain.Invalid("title", "must not be empty")
	}
	if opts.Priority != nil && !opts.Priority.IsValid() {
		return domain.Task{}, domain.Invalid("priority", "unknown priority %q", *opts.Priority)
	}
	if opts.Status != nil && !opts.Status.IsValid() {
		return domain.Task{}, domain.Invalid("status", "unknown status %q", *opts.Status)
	}
	projectID, err := e.projectOfTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	var (
		t   domain.Task
		box = outbox{actorID: opts.ActorID}
	)
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		var err error
		t, err = r.GetTask(ctx, opts.ID)
		if err != nil {
			return err
		}
		var actions []domain.Action
		if opts.editsFields() {
			actions = append(actions, domain.ActionEditTask)
		}
		if opts.AssigneeID != nil {
			actions = append(actions, domain.ActionAssignTask)
		}
		statusChange := opts.Status != nil && *opts.Status != t.Status
		if statusChange {
			if t.Status == domain.TaskReview && *opts.Status == domain.TaskDone {
				actions = append(actions, domain.ActionApproveTask)
			} else {
				actions = append(actions, domain.ActionEditTask)
			}
		}
		if len(actions) == 0 {
			return domain.Invalid("", "nothing to update")
		}
		a, err := authorize(ctx, r, projectID, opts.ActorID, actions...)
		if err != nil {
			return err
		}
		if opts.AssigneeID != nil {
			if err := checkReassign(ctx, r, a, t, *opts.AssigneeID); err != nil {
				return err
			}
		}
		before := t
		if err := e.applyTaskFields(ctx, r, &t, opts); err != nil {
			return err
		}
		if opts.AssigneeID != nil {
			if *opts.AssigneeID == "" {
				t.AssigneeID = nil
			} else {
				if _, err := requireMember(ctx, r, projectID, *opts.AssigneeID); err != nil {
					return err
				}
				assignee := *opts.AssigneeID
				t.AssigneeID = &assignee
			}
		}
		if statusChange {
			if err := checkStatusMove(ctx, r, t, *opts.Status); err != nil {
				return err
			}
			t.Status = *opts.Status
			if t.Status == domain.TaskDone {
				done := e.stamp()
				t.CompletedAt = &done
			} else {
				t.CompletedAt = nil
			}
		}
		t.UpdatedAt = e.stamp()
		if err := r.UpdateTask(ctx, t); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TaskUpdated, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: taskDiff(before, t),
		}); err != nil {
			return err
		}
		if statusChange {
			if _, err := recomputeCompletion(ctx, r, a.Project); err != nil {
				return err
			}
			if t.Status == domain.TaskReview {
				box.add(a.Project.OwnerID, NotifyTaskReview, "Task ready for review",
					fmt.Sprintf("%q is waiting for review", t.Title), taskLink(projectID, t.ID))
			}
		}
		if t.AssigneeID != nil && !samePtr(before.AssigneeID, t.AssigneeID) {
			box.add(*t.AssigneeID, NotifyTaskAssigned, "Task assigned",
				fmt.Sprintf("You were assigned %q", t.Title), taskLink(projectID, t.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.flush(ctx, &box)
	return t, nil
}

func (e Engine) applyTaskFields(ctx context.Context, r domain.Repositories, t *domain.Task, opts TaskUpdateOptions) error {
	if opts.Title != nil {
		t.Title = strings.TrimSpace(*opts.Title)
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if opts.ClearSchedule {
		t.StartDate, t.DueDate = nil, nil
	}
	if opts.StartDate != nil {
		t.StartDate = opts.StartDate
	}
	if opts.DueDate != nil {
		t.DueDate = opts.DueDate
	}
	if opts.EstimatedHours != nil {
		t.EstimatedHours = *opts.EstimatedHours
	}
	if err := validateSchedule(t.StartDate, t.DueDate, t.EstimatedHours); err != nil {
		return err
	}
	if opts.ParentID != nil {
		if *opts.ParentID == "" {
			t.ParentID = nil
			return nil
		}
		parent, err := r.GetTask(ctx, *opts.ParentID)
		if err != nil {
			return err
		}
		if parent.ProjectID != t.ProjectID {
			return domain.Invalid("parent_id", "parent task is in a different project")
		}
		if err := ensureNoParentCycle(ctx, r, parent.ID, t.ID); err != nil {
			return err
		}
		t.ParentID = &parent.ID
	}
	return nil
}

// ensureNoParentCycle climbs the parent chain from parentID and fails if it
// reaches childID.
func ensureNoParentCycle(ctx context.Context, r domain.Repositories, parentID, childID string) error {
	cur := parentID
	for cur != "" {
		if cur == childID {
			return domain.Invalid("parent_id", "task hierarchy cycle detected")
		}
		t, err := r.GetTask(ctx, cur)
		if err != nil {
			return err
		}
		if t.ParentID == nil {
			return nil
		}
		cur = *t.ParentID
	}
	return nil
}

// checkStatusMove enforces the task status graph and the dependency gates.
func checkStatusMove(ctx context.Context, r domain.Repositories, t domain.Task, to domain.TaskStatus) error {
	if to == domain.TaskBlocked || t.Status == domain.TaskBlocked {
		return &domain.InvalidTransitionError{Entity: "task", From: string(t.Status), To: string(to), Reason: "use block and unblock"}
	}
	if !t.Status.CanTransitionTo(to) {
		return &domain.InvalidTransitionError{Entity: "task", From: string(t.Status), To: string(to), Reason: "not allowed"}
	}
	var missing []string
	for _, d := range t.Dependencies {
		var gate func(domain.TaskStatus) bool
		var verb string
		switch {
		case d.Type == domain.DepMustStart && to == domain.TaskInProgress:
			gate, verb = domain.TaskStatus.Started, "start"
		case d.Type == domain.DepMustComplete && to == domain.TaskDone:
			gate, verb = func(s domain.TaskStatus) bool { return s == domain.TaskDone }, "be done"
		default:
			continue
		}
		dep, err := r.GetTask(ctx, d.DependsOnID)
		if err != nil {
			return err
		}
		if !gate(dep.Status) {
			missing = append(missing, fmt.Sprintf("task %s must %s", dep.ID, verb))
		}
	}
	if len(missing) > 0 {
		return &domain.InvalidTransitionError{Entity: "task", From: string(t.Status), To: string(to), Missing: missing, Reason: "dependencies not satisfied"}
	}
	return nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func taskDiff(before, after domain.Task) map[string]any {
	out := map[string]any{}
	if before.Title != after.Title {
		out["title"] = after.Title
	}
	if before.Description != after.Description {
		out["description"] = after.Description
	}
	if before.Priority != after.Priority {
		out["priority"] = after.Priority
	}
	if before.Status != after.Status {
		out["status"] = map[string]any{"from": before.Status, "to": after.Status}
	}
	if !samePtr(before.AssigneeID, after.AssigneeID) {
		out["assignee_id"] = after.AssigneeID
	}
	if !samePtr(before.ParentID, after.ParentID) {
		out["parent_id"] = after.ParentID
	}
	if before.EstimatedHours != after.EstimatedHours {
		out["estimated_hours"] = after.EstimatedHours
	}
	if !sameTime(before.StartDate, after.StartDate) {
		out["start_date"] = after.StartDate
	}
	if !sameTime(before.DueDate, after.DueDate) {
		out["due_date"] = after.DueDate
	}
	return out
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DeleteTask removes a task with its subtasks, edges, checklist and time.
func (e Engine) DeleteTask(ctx context.Context, actorID, taskID string) error {
	projectID, err := e.projectOfTask(ctx, taskID)
	if err != nil {
		return err
	}
	return e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, projectID, actorID, domain.ActionDeleteTask)
		if err != nil {
			return err
		}
		t, err := r.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := r.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TaskDeleted, ProjectID: projectID, EntityKind: "task", EntityID: taskID, ActorID: actorID,
			Payload: map[string]any{"title": t.Title, "status": t.Status},
		}); err != nil {
			return err
		}
		_, err = recomputeCompletion(ctx, r, a.Project)
		return err
	})
}

type BlockOptions struct {
	TaskID  string `json:"task_id"`
	Reason  string `json:"reason"`
	ActorID string `json:"-"`
}

// checkSeniority requires the actor to outrank the task's assignee. An
// unassigned task, or one whose assignee left the project, ranks 0.
func checkSeniority(ctx context.Context, r domain.Repositories, a actor, t domain.Task, verb string) error {
	var assigneeRole domain.Role
	if t.AssigneeID != nil {
		m, err := r.GetMember(ctx, t.ProjectID, *t.AssigneeID)
		switch {
		case err == nil:
			assigneeRole = m.Role
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	if auth.CanBlock(a.Role, assigneeRole) {
		return nil
	}
	return &domain.PermissionDeniedError{
		Role:       a.Role,
		Capability: domain.CapManageTeam,
		Reason:     fmt.Sprintf("%s cannot %s a task assigned to %s", a.Role, verb, assigneeRole),
	}
}

// checkReassign applies the blocking rule to taking a task away from its
// assignee. Members may hand off their own tasks unless the task is BLOCKED.
func checkReassign(ctx context.Context, r domain.Repositories, a actor, t domain.Task, assigneeID string) error {
	current := ""
	if t.AssigneeID != nil {
		current = *t.AssigneeID
	}
	switch {
	case current == assigneeID:
		return nil
	case t.Status == domain.TaskBlocked:
	case current == "" || current == a.ID:
		return nil
	}
	return checkSeniority(ctx, r, a, t, "reassign")
}

// BlockTask moves a task to BLOCKED and remembers where it came from.
func (e Engine) BlockTask(ctx context.Context, opts BlockOptions) (domain.Task, error) {
	reason := strings.TrimSpace(opts.Reason)
	if reason == "" {
		return domain.Task{}, domain.Invalid("reason", "is required")
	}
	projectID, err := e.projectOfTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	var (
		t   domain.Task
		box = outbox{actorID: opts.ActorID}
	)
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionBlockTask)
		if err != nil {
			return err
		}
		t, err = r.GetTask(ctx, opts.TaskID)
		if err != nil {
			return err
		}
		if err := checkSeniority(ctx, r, a, t, "block"); err != nil {
			return err
		}
		switch t.Status {
		case domain.TaskBlocked:
			return domain.Invalid("status", "task is already blocked")
		case domain.TaskDone, domain.TaskCancelled:
			return domain.Invalid("status", "a %s task cannot be blocked", t.Status)
		}
		now := e.stamp()
		t.Block = &domain.BlockInfo{BlockedBy: opts.ActorID, Reason: reason, BlockedAt: now, PreviousStatus: t.Status}
		t.Status = domain.TaskBlocked
		t.UpdatedAt = now
		if err := r.UpdateTask(ctx, t); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TaskBlocked, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"reason": reason, "previous_status": t.Block.PreviousStatus},
		}); err != nil {
			return err
		}
		if _, err := recomputeCompletion(ctx, r, a.Project); err != nil {
			return err
		}
		if t.AssigneeID != nil {
			box.add(*t.AssigneeID, NotifyTaskBlocked, "Task blocked",
				fmt.Sprintf("%q was blocked: %s", t.Title, reason), taskLink(projectID, t.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.flush(ctx, &box)
	return t, nil
}

// UnblockTask restores the status the task had before it was blocked.
func (e Engine) UnblockTask(ctx context.Context, actorID, taskID string) (domain.Task, error) {
	projectID, err := e.projectOfTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	var (
		t   domain.Task
		box = outbox{actorID: actorID}
	)
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, projectID, actorID, domain.ActionUnblockTask)
		if err != nil {
			return err
		}
		t, err = r.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := checkSeniority(ctx, r, a, t, "unblock"); err != nil {
			return err
		}
		if t.Status != domain.TaskBlocked {
			return domain.Invalid("status", "task is not blocked")
		}
		restored := domain.TaskTodo
		if t.Block != nil && t.Block.PreviousStatus.IsValid() && t.Block.PreviousStatus != domain.TaskBlocked {
			restored = t.Block.PreviousStatus
		}
		t.Status = restored
		t.Block = nil
		t.UpdatedAt = e.stamp()
		if err := r.UpdateTask(ctx, t); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TaskUnblocked, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: actorID,
			Payload: map[string]any{"status": restored},
		}); err != nil {
			return err
		}
		if _, err := recomputeCompletion(ctx, r, a.Project); err != nil {
			return err
		}
		if t.AssigneeID != nil {
			box.add(*t.AssigneeID, NotifyTaskUnblocked, "Task unblocked",
				fmt.Sprintf("%q is back to %s", t.Title, restored), taskLink(projectID, t.ID))
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.flush(ctx, &box)
	return t, nil
}
