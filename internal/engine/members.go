package engine

import (
	"context"
	"errors"
	"fmt"

	"projecthub/internal/domain"
	"projecthub/internal/engine/auth"
	"projecthub/internal/events"
)

type MemberOptions struct {
	ProjectID string      `json:"project_id"`
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	ActorID   string      `json:"-"`
}

func grantDenied(actorRole, role domain.Role) error {
	if role == domain.RoleProjectLead {
		return &domain.PermissionDeniedError{Role: actorRole, Reason: "the project lead role cannot be granted"}
	}
	return &domain.PermissionDeniedError{Role: actorRole, Reason: fmt.Sprintf("%s cannot grant %s", actorRole, role)}
}

// AddMember invites a user with a role whose capabilities the actor already
// holds.
func (e Engine) AddMember(ctx context.Context, opts MemberOptions) (domain.ProjectMember, error) {
	if opts.UserID == "" {
		return domain.ProjectMember{}, domain.Invalid("user_id", "is required")
	}
	if !opts.Role.IsValid() {
		return domain.ProjectMember{}, domain.Invalid("role", "unknown role %q", opts.Role)
	}
	var (
		m   domain.ProjectMember
		box = outbox{actorID: opts.ActorID}
	)
	err := e.Store.Atomic(ctx, opts.ProjectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, opts.ProjectID, opts.ActorID, domain.ActionInviteMember)
		if err != nil {
			return err
		}
		if !auth.CanGrant(a.Role, opts.Role) {
			return grantDenied(a.Role, opts.Role)
		}
		if _, err := r.GetMember(ctx, opts.ProjectID, opts.UserID); err == nil {
			return domain.Invalid("user_id", "%s is already a member", opts.UserID)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		m = domain.ProjectMember{ProjectID: opts.ProjectID, UserID: opts.UserID, Role: opts.Role, JoinedAt: e.stamp()}
		if err := r.UpsertMember(ctx, m); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.MemberAdded, ProjectID: opts.ProjectID, EntityKind: "member", EntityID: opts.UserID, ActorID: opts.ActorID,
			Payload: map[string]any{"role": opts.Role},
		}); err != nil {
			return err
		}
		box.add(opts.UserID, NotifyMemberAdded, "Added to project",
			fmt.Sprintf("You joined %s as %s", a.Project.Title, opts.Role), projectLink(opts.ProjectID))
		return nil
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	e.flush(ctx, &box)
	return m, nil
}

// ChangeMemberRole replaces another member's role. The lead keeps their role,
// nobody changes their own, and the actor must be able to grant both the old
// and the new role.
func (e Engine) ChangeMemberRole(ctx context.Context, opts MemberOptions) (domain.ProjectMember, error) {
	if !opts.Role.IsValid() {
		return domain.ProjectMember{}, domain.Invalid("role", "unknown role %q", opts.Role)
	}
	var (
		m   domain.ProjectMember
		box = outbox{actorID: opts.ActorID}
	)
	err := e.Store.Atomic(ctx, opts.ProjectID, func(r domain.Repositories) error {
		a, err := authorize(ctx, r, opts.ProjectID, opts.ActorID, domain.ActionChangeMemberRole)
		if err != nil {
			return err
		}
		m, err = r.GetMember(ctx, opts.ProjectID, opts.UserID)
		if err != nil {
			return err
		}
		if m.Role == domain.RoleProjectLead {
			return domain.Invalid("user_id", "the project lead's role cannot be changed")
		}
		if m.UserID == a.ID {
			return &domain.PermissionDeniedError{Role: a.Role, Reason: "members cannot change their own role"}
		}
		if !auth.CanGrant(a.Role, opts.Role) {
			return grantDenied(a.Role, opts.Role)
		}
		if !auth.CanGrant(a.Role, m.Role) {
			return &domain.PermissionDeniedError{Role: a.Role, Reason: fmt.Sprintf("%s cannot change the role of a %s", a.Role, m.Role)}
		}
		previous := m.Role
		if previous == opts.Role {
			return nil
		}
		m.Role = opts.Role
		if err := r.UpsertMember(ctx, m); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.MemberRoleChanged, ProjectID: opts.ProjectID, EntityKind: "member", EntityID: opts.UserID, ActorID: opts.ActorID,
			Payload: map[string]any{"from": previous, "to": opts.Role},
		}); err != nil {
			return err
		}
		box.add(opts.UserID, NotifyRoleChanged, "Role changed",
			fmt.Sprintf("Your role in %s is now %s", a.Project.Title, opts.Role), projectLink(opts.ProjectID))
		return nil
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	e.flush(ctx, &box)
	return m, nil
}

// RemoveMember drops a member and unassigns their open tasks.
func (e Engine) RemoveMember(ctx context.Context, actorID, projectID, userID string) error {
	return e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, actorID, domain.ActionRemoveMember); err != nil {
			return err
		}
		m, err := r.GetMember(ctx, projectID, userID)
		if err != nil {
			return err
		}
		if m.Role == domain.RoleProjectLead {
			return domain.Invalid("user_id", "the project lead cannot be removed")
		}
		tasks, err := r.ListTasks(ctx, domain.TaskFilter{ProjectID: projectID, AssigneeID: userID})
		if err != nil {
			return err
		}
		now := e.stamp()
		var unassigned []string
		for _, t := range tasks {
			if !t.Status.IsOpen() {
				continue
			}
			t.AssigneeID = nil
			t.UpdatedAt = now
			if err := r.UpdateTask(ctx, t); err != nil {
				return err
			}
			unassigned = append(unassigned, t.ID)
		}
		if err := r.DeleteMember(ctx, projectID, userID); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.MemberRemoved, ProjectID: projectID, EntityKind: "member", EntityID: userID, ActorID: actorID,
			Payload: map[string]any{"role": m.Role, "unassigned_tasks": unassigned},
		})
	})
}

func (e Engine) ListMembers(ctx context.Context, actorID, projectID string) ([]domain.ProjectMember, error) {
	if _, err := e.read(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	return e.Store.ListMembers(ctx, projectID)
}
