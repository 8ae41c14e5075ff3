package graph

import "projecthub/internal/domain"

// IsTaskComplete reports full completion: the task is DONE, lists no
// prerequisites, is not blocked, every subtask is itself complete and every
// checklist item is ticked. children maps a parent id to its subtasks.
func IsTaskComplete(t domain.Task, children map[string][]domain.Task) bool {
	return isComplete(t, children, make(map[string]bool))
}

func isComplete(t domain.Task, children map[string][]domain.Task, seen map[string]bool) bool {
	if seen[t.ID] {
		return false
	}
	seen[t.ID] = true
	if t.Status != domain.TaskDone || len(t.DependsOn) > 0 || t.Block != nil {
		return false
	}
	for _, item := range t.Checklist {
		if !item.Completed {
			return false
		}
	}
	for _, sub := range children[t.ID] {
		if !isComplete(sub, children, seen) {
			return false
		}
	}
	return true
}

// ChildrenIndex groups tasks by parent id.
func ChildrenIndex(tasks []domain.Task) map[string][]domain.Task {
	idx := make(map[string][]domain.Task)
	for _, t := range tasks {
		if t.ParentID != nil {
			idx[*t.ParentID] = append(idx[*t.ParentID], t)
		}
	}
	return idx
}
