package engine

import (
	"context"
	"fmt"
	"strings"

	"projecthub/internal/domain"
	"projecthub/internal/engine/auth"
	"projecthub/internal/engine/lifecycle"
	"projecthub/internal/events"
)

// Notification types.
const (
	NotifyTaskAssigned    = "task_assigned"
	NotifyTaskBlocked     = "task_blocked"
	NotifyTaskUnblocked   = "task_unblocked"
	NotifyTaskReview      = "task_review"
	NotifyDependencyAdded = "dependency_added"
	NotifyStageChanged    = "stage_changed"
	NotifyMemberAdded     = "member_added"
	NotifyRoleChanged     = "member_role_changed"
)

type ProjectCreateOptions struct {
	ID                string `json:"id,omitempty"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	SeekingInvestment bool   `json:"seeking_investment,omitempty"`
	ActorID           string `json:"-"`
}

// CreateProject creates a project in IDEA with the actor as its sole lead.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.ActorID == "" {
		return domain.Project{}, &domain.PermissionDeniedError{Reason: "actor is required"}
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Project{}, domain.Invalid("title", "is required")
	}
	id := opts.ID
	if id == "" {
		id = e.newID()
	}
	now := e.stamp()
	p := domain.Project{
		ID:                id,
		Title:             title,
		Description:       opts.Description,
		Stage:             domain.StageIdea,
		OwnerID:           opts.ActorID,
		SeekingInvestment: opts.SeekingInvestment,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := e.Store.Atomic(ctx, id, func(r domain.Repositories) error {
		if err := r.CreateProject(ctx, p); err != nil {
			return err
		}
		if err := r.UpsertMember(ctx, domain.ProjectMember{ProjectID: id, UserID: opts.ActorID, Role: domain.RoleProjectLead, JoinedAt: now}); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ProjectCreated, ProjectID: id, EntityKind: "project", EntityID: id, ActorID: opts.ActorID,
			Payload: map[string]any{"title": p.Title, "stage": p.Stage},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project created", "project_id", id, "actor_id", opts.ActorID)
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, actorID, projectID string) (domain.Project, error) {
	a, err := e.read(ctx, projectID, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	return a.Project, nil
}

// ListProjects returns the projects actorID is a member of.
func (e Engine) ListProjects(ctx context.Context, actorID string) ([]domain.Project, error) {
	if actorID == "" {
		return nil, &domain.PermissionDeniedError{Reason: "actor is required"}
	}
	return e.Store.ListProjects(ctx, actorID)
}

type ProjectUpdateOptions struct {
	ID                string  `json:"id"`
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	SeekingInvestment *bool   `json:"seeking_investment,omitempty"`
	ActorID           string  `json:"-"`
}

// UpdateProject edits project fields. The investment flag needs the budget
// capability; title and description need edit rights.
func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	var actions []domain.Action
	if opts.Title != nil || opts.Description != nil {
		actions = append(actions, domain.ActionEditProject)
	}
	if opts.SeekingInvestment != nil {
		actions = append(actions, domain.ActionSetInvestment)
	}
	if len(actions) == 0 {
		return domain.Project{}, domain.Invalid("", "nothing to update")
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return domain.Project{}, domain.Invalid("title", "must not be empty")
	}
	err := e.Store.Atomic(ctx, opts.ID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, opts.ID, opts.ActorID, actions...); err != nil {
			return err
		}
		patch := domain.ProjectPatch{Title: opts.Title, Description: opts.Description, SeekingInvestment: opts.SeekingInvestment}
		if err := r.UpdateProject(ctx, opts.ID, patch); err != nil {
			return err
		}
		payload := map[string]any{}
		if opts.Title != nil {
			payload["title"] = *opts.Title
		}
		if opts.Description != nil {
			payload["description"] = *opts.Description
		}
		if opts.SeekingInvestment != nil {
			payload["seeking_investment"] = *opts.SeekingInvestment
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ProjectUpdated, ProjectID: opts.ID, EntityKind: "project", EntityID: opts.ID, ActorID: opts.ActorID, Payload: payload,
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return e.Store.GetProject(ctx, opts.ID)
}

// DeleteProject hard-deletes an empty project. Projects with tasks must be
// archived instead.
func (e Engine) DeleteProject(ctx context.Context, actorID, projectID string) error {
	return e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, actorID, domain.ActionDeleteProject); err != nil {
			return err
		}
		tasks, err := r.ListTasks(ctx, domain.TaskFilter{ProjectID: projectID})
		if err != nil {
			return err
		}
		if len(tasks) > 0 {
			return domain.Invalid("project", "has %d tasks; move it to %s instead", len(tasks), domain.StageArchived)
		}
		if err := r.DeleteProject(ctx, projectID); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ProjectDeleted, ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: actorID,
		})
	})
}

type StageTransitionOptions struct {
	ProjectID string       `json:"project_id"`
	To        domain.Stage `json:"to"`
	// Met lists the requirements the actor asserts are satisfied.
	Met     []string `json:"met,omitempty"`
	Note    string   `json:"note,omitempty"`
	ActorID string   `json:"-"`
}

// TransitionStage moves a project along one lifecycle edge.
func (e Engine) TransitionStage(ctx context.Context, opts StageTransitionOptions) (domain.Project, error) {
	if !opts.To.IsValid() {
		return domain.Project{}, domain.Invalid("to", "unknown stage %q", opts.To)
	}
	box := outbox{actorID: opts.ActorID}
	err := e.Store.Atomic(ctx, opts.ProjectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, opts.ProjectID, opts.ActorID, domain.ActionTransitionStage)
		if err != nil {
			return err
		}
		from := a.Project.Stage
		if edge, ok := e.Lifecycle.Edge(from, opts.To); ok && !edge.ApprovedBy(a.Role) {
			return &domain.PermissionDeniedError{
				Role:       a.Role,
				Capability: domain.CapApproveTasks,
				Reason:     fmt.Sprintf("role %s cannot approve %s -> %s", a.Role, from, opts.To),
			}
		}
		d := e.Lifecycle.CanTransition(from, opts.To, a.Role, opts.Met)
		if !d.Allowed {
			return &domain.InvalidTransitionError{Entity: "project", From: string(from), To: string(opts.To), Missing: d.Missing, Reason: d.Reason}
		}
		if err := r.UpdateProject(ctx, opts.ProjectID, domain.ProjectPatch{Stage: &opts.To}); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.ProjectStageChange, ProjectID: opts.ProjectID, EntityKind: "project", EntityID: opts.ProjectID, ActorID: opts.ActorID,
			Payload: map[string]any{"from": from, "to": opts.To, "met": opts.Met, "note": opts.Note},
		}); err != nil {
			return err
		}
		members, err := r.ListMembers(ctx, opts.ProjectID)
		if err != nil {
			return err
		}
		for _, m := range members {
			box.add(m.UserID, NotifyStageChanged, "Project stage changed",
				fmt.Sprintf("%s moved from %s to %s", a.Project.Title, from, opts.To), projectLink(opts.ProjectID))
		}
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project stage changed", "project_id", opts.ProjectID, "stage", opts.To, "actor_id", opts.ActorID)
	e.flush(ctx, &box)
	return e.Store.GetProject(ctx, opts.ProjectID)
}

// StageOption is an outgoing lifecycle edge annotated for one actor.
type StageOption struct {
	lifecycle.Edge
	CanApprove bool `json:"can_approve"`
}

// AvailableTransitions lists the edges leaving the project's current stage.
func (e Engine) AvailableTransitions(ctx context.Context, actorID, projectID string) ([]StageOption, error) {
	a, err := e.read(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	edges := e.Lifecycle.Edges(a.Project.Stage)
	out := make([]StageOption, 0, len(edges))
	for _, edge := range edges {
		out = append(out, StageOption{
			Edge:       edge,
			CanApprove: edge.ApprovedBy(a.Role) && auth.CanPerformAction(a.Role, domain.ActionTransitionStage),
		})
	}
	return out, nil
}
