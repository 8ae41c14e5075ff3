package engine

import (
	"context"
	"fmt"

	"projecthub/internal/domain"
	"projecthub/internal/engine/graph"
	"projecthub/internal/engine/planning"
	"projecthub/internal/events"
)

type DependencyOptions struct {
	TaskID      string                `json:"task_id"`
	DependsOnID string                `json:"depends_on_id"`
	Type        domain.DependencyType `json:"type,omitempty"`
	ActorID     string                `json:"-"`
}

// loadPair reads both ends of an edge and checks they share a project.
func loadPair(ctx context.Context, r domain.Repositories, taskID, dependsOnID string) (domain.Task, domain.Task, error) {
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return t, domain.Task{}, err
	}
	dep, err := r.GetTask(ctx, dependsOnID)
	if err != nil {
		return t, dep, err
	}
	if t.ProjectID != dep.ProjectID {
		return t, dep, domain.Invalid("depends_on_id", "task %s is in a different project", dependsOnID)
	}
	return t, dep, nil
}

// AddDependency records that TaskID depends on DependsOnID. The project's
// graph is rebuilt from storage inside the unit of work, so two racing calls
// cannot together close a cycle. Re-adding an existing edge reports
// added=false.
func (e Engine) AddDependency(ctx context.Context, opts DependencyOptions) (bool, error) {
	if opts.Type == "" {
		opts.Type = domain.DepMustComplete
	}
	if !opts.Type.IsValid() {
		return false, domain.Invalid("type", "unknown dependency type %q", opts.Type)
	}
	projectID, err := e.projectOfTask(ctx, opts.TaskID)
	if err != nil {
		return false, err
	}
	var (
		added bool
		box   = outbox{actorID: opts.ActorID}
	)
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionAddDependency); err != nil {
			return err
		}
		t, dep, err := loadPair(ctx, r, opts.TaskID, opts.DependsOnID)
		if err != nil {
			return err
		}
		deps, err := r.ListDependencies(ctx, projectID)
		if err != nil {
			return err
		}
		g := graph.New(deps)
		added, err = g.AddDependency(t.ID, dep.ID, opts.Type)
		if err != nil || !added {
			return err
		}
		if err := r.CreateDependency(ctx, domain.Dependency{TaskID: t.ID, DependsOnID: dep.ID, Type: opts.Type, CreatedAt: e.stamp()}); err != nil {
			return err
		}
		if err := r.AppendEvent(ctx, domain.EventRecord{
			Type: events.DependencyAdded, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"depends_on_id": dep.ID, "type": opts.Type},
		}); err != nil {
			return err
		}
		if t.AssigneeID != nil {
			box.add(*t.AssigneeID, NotifyDependencyAdded, "Dependency added",
				fmt.Sprintf("%q now depends on %q", t.Title, dep.Title), taskLink(projectID, t.ID))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	e.flush(ctx, &box)
	return added, nil
}

func (e Engine) RemoveDependency(ctx context.Context, opts DependencyOptions) error {
	projectID, err := e.projectOfTask(ctx, opts.TaskID)
	if err != nil {
		return err
	}
	return e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionRemoveDependency); err != nil {
			return err
		}
		t, dep, err := loadPair(ctx, r, opts.TaskID, opts.DependsOnID)
		if err != nil {
			return err
		}
		deps, err := r.ListDependencies(ctx, projectID)
		if err != nil {
			return err
		}
		if err := graph.New(deps).RemoveDependency(t.ID, dep.ID); err != nil {
			return err
		}
		if err := r.DeleteDependency(ctx, t.ID, dep.ID); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.DependencyRemoved, ProjectID: projectID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"depends_on_id": dep.ID},
		})
	})
}

// Conflicts runs the conflict detector over one project.
func (e Engine) Conflicts(ctx context.Context, actorID, projectID string) ([]domain.Conflict, error) {
	if _, err := e.read(ctx, projectID, actorID, domain.ActionViewAnalytics); err != nil {
		return nil, err
	}
	tasks, err := e.Store.ListTasks(ctx, domain.TaskFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return graph.DetectConflicts(tasks, graph.Options{
		TimeConflicts:  e.Features.DetectTimeConflicts,
		DuplicateTasks: e.Features.DetectDuplicateTasks,
	}), nil
}

// TaskEstimate is the planning view of one task.
type TaskEstimate struct {
	TaskID   string          `json:"task_id"`
	Estimate domain.Estimate `json:"estimate"`
	Quadrant domain.Quadrant `json:"quadrant"`
	Complete bool            `json:"complete"`
}

// EstimateTask returns the three-point estimate, the Eisenhower quadrant and
// whether the task counts as complete.
func (e Engine) EstimateTask(ctx context.Context, actorID, taskID string) (TaskEstimate, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return TaskEstimate{}, err
	}
	if _, err := e.read(ctx, t.ProjectID, actorID, domain.ActionViewAnalytics); err != nil {
		return TaskEstimate{}, err
	}
	tasks, err := e.Store.ListTasks(ctx, domain.TaskFilter{ProjectID: t.ProjectID})
	if err != nil {
		return TaskEstimate{}, err
	}
	return TaskEstimate{
		TaskID:   t.ID,
		Estimate: planning.Estimate(t.EstimatedHours),
		Quadrant: planning.Classify(t.Priority, t.DueDate, e.now()),
		Complete: graph.IsTaskComplete(t, graph.ChildrenIndex(tasks)),
	}, nil
}
