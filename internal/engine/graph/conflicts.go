package graph

import (
	"fmt"
	"strings"
	"unicode"

	"projecthub/internal/domain"
)

// Options enables the conflict kinds beyond dependency cycles.
type Options struct {
	TimeConflicts  bool
	DuplicateTasks bool
}

// DetectConflicts scans one project's tasks. Every task that sits on a
// dependency cycle yields exactly one CIRCULAR_DEPENDENCY conflict.
func DetectConflicts(tasks []domain.Task, opts Options) []domain.Conflict {
	g := FromTasks(tasks)
	var out []domain.Conflict
	for _, t := range tasks {
		cycle := g.Path(t.ID, t.ID)
		if cycle == nil {
			continue
		}
		out = append(out, domain.Conflict{
			Type:     domain.ConflictCircularDependency,
			Severity: domain.SeverityError,
			TaskIDs:  []string{t.ID},
			Message:  fmt.Sprintf("task %s is part of a dependency cycle: %s", t.ID, strings.Join(cycle, " -> ")),
		})
	}
	if opts.TimeConflicts {
		out = append(out, timeConflicts(tasks)...)
	}
	if opts.DuplicateTasks {
		out = append(out, duplicateTasks(tasks)...)
	}
	return out
}

func timeConflicts(tasks []domain.Task) []domain.Conflict {
	var out []domain.Conflict
	for i := 0; i < len(tasks); i++ {
		a := tasks[i]
		if !scheduled(a) {
			continue
		}
		for j := i + 1; j < len(tasks); j++ {
			b := tasks[j]
			if !scheduled(b) || *a.AssigneeID != *b.AssigneeID {
				continue
			}
			if a.StartDate.After(*b.DueDate) || b.StartDate.After(*a.DueDate) {
				continue
			}
			out = append(out, domain.Conflict{
				Type:     domain.ConflictTime,
				Severity: domain.SeverityWarning,
				TaskIDs:  []string{a.ID, b.ID},
				Message:  fmt.Sprintf("%s has overlapping schedules for tasks %s and %s", *a.AssigneeID, a.ID, b.ID),
			})
		}
	}
	return out
}

func scheduled(t domain.Task) bool {
	return t.Status.IsOpen() && t.AssigneeID != nil && *t.AssigneeID != "" && t.StartDate != nil && t.DueDate != nil
}

func duplicateTasks(tasks []domain.Task) []domain.Conflict {
	var out []domain.Conflict
	seen := make(map[string]string)
	for _, t := range tasks {
		if t.Status == domain.TaskCancelled {
			continue
		}
		key := NormalizeTitle(t.Title)
		if key == "" {
			continue
		}
		first, ok := seen[key]
		if !ok {
			seen[key] = t.ID
			continue
		}
		out = append(out, domain.Conflict{
			Type:     domain.ConflictDuplicateTask,
			Severity: domain.SeverityWarning,
			TaskIDs:  []string{first, t.ID},
			Message:  fmt.Sprintf("task %s duplicates %s (%q)", t.ID, first, t.Title),
		})
	}
	return out
}

// NormalizeTitle lowercases, strips punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, title)
	return strings.Join(strings.Fields(cleaned), " ")
}
