// Package engine is the workflow orchestrator. Every mutation resolves the
// actor's project role, checks the permission matrix and the relevant graph,
// writes through one atomic store unit with its audit event, and only then
// emits notifications.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"projecthub/internal/config"
	"projecthub/internal/domain"
	"projecthub/internal/engine/auth"
	"projecthub/internal/engine/lifecycle"
)

// Store is the persistence the engine needs. Atomic scopes a unit of work to
// one project.
type Store interface {
	domain.Repositories
	Atomic(ctx context.Context, projectID string, fn func(domain.Repositories) error) error
}

type Engine struct {
	Store     Store
	Lifecycle lifecycle.Graph
	Features  config.Features
	Notifier  domain.Notifier
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func New(store Store, features config.Features, notifier domain.Notifier, logger *slog.Logger) Engine {
	return Engine{
		Store:     store,
		Lifecycle: lifecycle.New(lifecycle.Options{ArchiveCompleted: features.ArchiveCompletedProjects}),
		Features:  features,
		Notifier:  notifier,
		Logger:    logger,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// actor is the resolved caller of one action.
type actor struct {
	ID      string
	Role    domain.Role
	Project domain.Project
}

// resolve loads the project and the actor's membership. Non-members are
// refused before any capability is considered.
func resolve(ctx context.Context, r domain.Repositories, projectID, actorID string) (actor, error) {
	if actorID == "" {
		return actor{}, &domain.PermissionDeniedError{Reason: "actor is required"}
	}
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return actor{}, err
	}
	m, err := r.GetMember(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return actor{}, &domain.PermissionDeniedError{Reason: fmt.Sprintf("%s is not a member of project %s", actorID, projectID)}
		}
		return actor{}, err
	}
	return actor{ID: actorID, Role: m.Role, Project: p}, nil
}

// authorize resolves the actor and checks every action against the matrix.
func authorize(ctx context.Context, r domain.Repositories, projectID, actorID string, actions ...domain.Action) (actor, error) {
	a, err := resolve(ctx, r, projectID, actorID)
	if err != nil {
		return a, err
	}
	for _, action := range actions {
		if err := auth.Authorize(a.Role, action); err != nil {
			return a, err
		}
	}
	return a, nil
}

// read authorizes a call that does not mutate anything.
func (e Engine) read(ctx context.Context, projectID, actorID string, actions ...domain.Action) (actor, error) {
	return authorize(ctx, e.Store, projectID, actorID, actions...)
}

// outbox collects notifications during a unit of work. They are sent only
// after the unit commits.
type outbox struct {
	actorID string
	items   []domain.Notification
}

func (o *outbox) add(userID, typ, title, message, link string) {
	if userID == "" || userID == o.actorID {
		return
	}
	o.items = append(o.items, domain.Notification{UserID: userID, Type: typ, Title: title, Message: message, Link: link})
}

func (e Engine) flush(ctx context.Context, o *outbox) {
	if e.Notifier == nil || !e.Features.Notifications {
		return
	}
	for _, n := range o.items {
		if err := e.Notifier.Notify(ctx, n); err != nil {
			e.log().Warn("notification failed", "type", n.Type, "user_id", n.UserID, "err", err)
		}
	}
}

// recomputeCompletion stores the share of DONE tasks among the project's
// non-cancelled tasks.
func recomputeCompletion(ctx context.Context, r domain.Repositories, p domain.Project) (int, error) {
	tasks, err := r.ListTasks(ctx, domain.TaskFilter{ProjectID: p.ID})
	if err != nil {
		return 0, err
	}
	total, done := 0, 0
	for _, t := range tasks {
		if t.Status == domain.TaskCancelled {
			continue
		}
		total++
		if t.Status == domain.TaskDone {
			done++
		}
	}
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(done) * 100 / float64(total)))
	}
	if pct == p.CompletionPercent {
		return pct, nil
	}
	return pct, r.UpdateProject(ctx, p.ID, domain.ProjectPatch{CompletionPercent: &pct})
}

func projectLink(projectID string) string {
	return "/projects/" + projectID
}

func taskLink(projectID, taskID string) string {
	return "/projects/" + projectID + "/tasks/" + taskID
}
