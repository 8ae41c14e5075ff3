package engine

import (
	"context"
	"math"
	"time"

	"projecthub/internal/domain"
	"projecthub/internal/engine/auth"
	"projecthub/internal/events"
)

const (
	minEntryHours = 0.5
	maxEntryHours = 24
)

func validateHours(h float64) error {
	if math.IsNaN(h) || h < minEntryHours || h > maxEntryHours {
		return domain.Invalid("hours", "must be between %.1f and %d", minEntryHours, maxEntryHours)
	}
	if q := h * 4; q != math.Trunc(q) {
		return domain.Invalid("hours", "must be a multiple of 0.25")
	}
	return nil
}

func validateEntryDate(d string) error {
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return domain.Invalid("date", "must be YYYY-MM-DD")
	}
	return nil
}

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 {
		return domain.Invalid("hourly_rate", "must not be negative")
	}
	return nil
}

type TimeLogOptions struct {
	TaskID      string  `json:"task_id"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Billable    bool    `json:"billable,omitempty"`
	HourlyRate  float64 `json:"hourly_rate,omitempty"`
	Description string  `json:"description,omitempty"`
	ActorID     string  `json:"-"`
}

// LogTime records hours the actor spent on a task.
func (e Engine) LogTime(ctx context.Context, opts TimeLogOptions) (domain.TimeEntry, error) {
	if opts.Date == "" {
		opts.Date = e.now().UTC().Format(time.DateOnly)
	}
	if err := validateEntryDate(opts.Date); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := validateHours(opts.Hours); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := validateRate(opts.HourlyRate); err != nil {
		return domain.TimeEntry{}, err
	}
	projectID, err := e.projectOfTask(ctx, opts.TaskID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	now := e.stamp()
	entry := domain.TimeEntry{
		ID:          e.newID(),
		TaskID:      opts.TaskID,
		ProjectID:   projectID,
		UserID:      opts.ActorID,
		Date:        opts.Date,
		Hours:       opts.Hours,
		Billable:    opts.Billable,
		HourlyRate:  opts.HourlyRate,
		Description: opts.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = e.Store.Atomic(ctx, projectID, func(r domain.Repositories) error {
		if _, err := authorize(ctx, r, projectID, opts.ActorID, domain.ActionLogTime); err != nil {
			return err
		}
		if err := r.CreateTimeEntry(ctx, entry); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TimeLogged, ProjectID: projectID, EntityKind: "time_entry", EntityID: entry.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"task_id": entry.TaskID, "date": entry.Date, "hours": entry.Hours, "billable": entry.Billable},
		})
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

// ownerOrManager lets the entry's author through, and anyone else only with
// the team management capability.
func ownerOrManager(a actor, entry domain.TimeEntry) error {
	if entry.UserID == a.ID {
		return nil
	}
	return auth.Authorize(a.Role, domain.ActionManageTimeEntries)
}

type TimeEntryUpdateOptions struct {
	ID          string   `json:"id"`
	Date        *string  `json:"date,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
	Billable    *bool    `json:"billable,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Description *string  `json:"description,omitempty"`
	ActorID     string   `json:"-"`
}

func (e Engine) UpdateTimeEntry(ctx context.Context, opts TimeEntryUpdateOptions) (domain.TimeEntry, error) {
	if opts.Date != nil {
		if err := validateEntryDate(*opts.Date); err != nil {
			return domain.TimeEntry{}, err
		}
	}
	if opts.Hours != nil {
		if err := validateHours(*opts.Hours); err != nil {
			return domain.TimeEntry{}, err
		}
	}
	if opts.HourlyRate != nil {
		if err := validateRate(*opts.HourlyRate); err != nil {
			return domain.TimeEntry{}, err
		}
	}
	current, err := e.Store.GetTimeEntry(ctx, opts.ID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	var entry domain.TimeEntry
	err = e.Store.Atomic(ctx, current.ProjectID, func(r domain.Repositories) error {
		a, err := resolve(ctx, r, current.ProjectID, opts.ActorID)
		if err != nil {
			return err
		}
		entry, err = r.GetTimeEntry(ctx, opts.ID)
		if err != nil {
			return err
		}
		if err := ownerOrManager(a, entry); err != nil {
			return err
		}
		if opts.Date != nil {
			entry.Date = *opts.Date
		}
		if opts.Hours != nil {
			entry.Hours = *opts.Hours
		}
		if opts.Billable != nil {
			entry.Billable = *opts.Billable
		}
		if opts.HourlyRate != nil {
			entry.HourlyRate = *opts.HourlyRate
		}
		if opts.Description != nil {
			entry.Description = *opts.Description
		}
		entry.UpdatedAt = e.stamp()
		if err := r.UpdateTimeEntry(ctx, entry); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TimeEntryUpdated, ProjectID: entry.ProjectID, EntityKind: "time_entry", EntityID: entry.ID, ActorID: opts.ActorID,
			Payload: map[string]any{"date": entry.Date, "hours": entry.Hours, "billable": entry.Billable},
		})
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	return entry, nil
}

func (e Engine) DeleteTimeEntry(ctx context.Context, actorID, entryID string) error {
	current, err := e.Store.GetTimeEntry(ctx, entryID)
	if err != nil {
		return err
	}
	return e.Store.Atomic(ctx, current.ProjectID, func(r domain.Repositories) error {
		a, err := resolve(ctx, r, current.ProjectID, actorID)
		if err != nil {
			return err
		}
		entry, err := r.GetTimeEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if err := ownerOrManager(a, entry); err != nil {
			return err
		}
		if err := r.DeleteTimeEntry(ctx, entryID); err != nil {
			return err
		}
		return r.AppendEvent(ctx, domain.EventRecord{
			Type: events.TimeEntryDeleted, ProjectID: entry.ProjectID, EntityKind: "time_entry", EntityID: entryID, ActorID: actorID,
			Payload: map[string]any{"task_id": entry.TaskID, "hours": entry.Hours},
		})
	})
}

// ListTimeEntries returns a project's entries. Members without analytics
// access see only their own.
func (e Engine) ListTimeEntries(ctx context.Context, actorID string, f domain.TimeEntryFilter) ([]domain.TimeEntry, error) {
	if f.ProjectID == "" {
		return nil, domain.Invalid("project_id", "is required")
	}
	a, err := e.read(ctx, f.ProjectID, actorID)
	if err != nil {
		return nil, err
	}
	if !auth.CanPerformAction(a.Role, domain.ActionViewAnalytics) {
		f.UserID = actorID
	}
	return e.Store.ListTimeEntries(ctx, f)
}

// Events returns a project's audit trail.
func (e Engine) Events(ctx context.Context, actorID string, f domain.EventFilter) ([]domain.Event, error) {
	if f.ProjectID == "" {
		return nil, domain.Invalid("project_id", "is required")
	}
	if _, err := e.read(ctx, f.ProjectID, actorID, domain.ActionExportData); err != nil {
		return nil, err
	}
	return e.Store.ListEvents(ctx, f)
}
