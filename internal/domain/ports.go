package domain

import "context"

// ProjectPatch carries the fields an update touches; nil fields are kept.
type ProjectPatch struct {
	Title             *string
	Description       *string
	Stage             *Stage
	SeekingInvestment *bool
	CompletionPercent *int
}

func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Stage == nil && p.SeekingInvestment == nil && p.CompletionPercent == nil
}

type TaskFilter struct {
	ProjectID  string
	Status     TaskStatus
	AssigneeID string
	ParentID   string
}

type TimeEntryFilter struct {
	ProjectID string
	TaskID    string
	UserID    string
}

type EventFilter struct {
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
	AfterID    int64
	Limit      int
}

// EventRecord is an audit entry before it is stored.
type EventRecord struct {
	Type       string
	ProjectID  string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    map[string]any
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (Project, error)
	ListProjects(ctx context.Context, memberID string) ([]Project, error)
	CreateProject(ctx context.Context, p Project) error
	UpdateProject(ctx context.Context, id string, patch ProjectPatch) error
	DeleteProject(ctx context.Context, id string) error
}

// MemberRepository persists project membership.
type MemberRepository interface {
	GetMember(ctx context.Context, projectID, userID string) (ProjectMember, error)
	ListMembers(ctx context.Context, projectID string) ([]ProjectMember, error)
	UpsertMember(ctx context.Context, m ProjectMember) error
	DeleteMember(ctx context.Context, projectID, userID string) error
}

// TaskRepository persists tasks. Reads return tasks with their dependency
// edges and checklist loaded.
type TaskRepository interface {
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	CreateTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, t Task) error
	DeleteTask(ctx context.Context, id string) error
}

// DependencyRepository persists dependency edges.
type DependencyRepository interface {
	ListDependencies(ctx context.Context, projectID string) ([]Dependency, error)
	CreateDependency(ctx context.Context, d Dependency) error
	DeleteDependency(ctx context.Context, taskID, dependsOnID string) error
}

// ChecklistRepository persists checklist items.
type ChecklistRepository interface {
	GetChecklistItem(ctx context.Context, id string) (ChecklistItem, error)
	CreateChecklistItem(ctx context.Context, item ChecklistItem) error
	UpdateChecklistItem(ctx context.Context, item ChecklistItem) error
	DeleteChecklistItem(ctx context.Context, id string) error
}

// TimeEntryRepository persists time entries.
type TimeEntryRepository interface {
	GetTimeEntry(ctx context.Context, id string) (TimeEntry, error)
	ListTimeEntries(ctx context.Context, f TimeEntryFilter) ([]TimeEntry, error)
	CreateTimeEntry(ctx context.Context, e TimeEntry) error
	UpdateTimeEntry(ctx context.Context, e TimeEntry) error
	DeleteTimeEntry(ctx context.Context, id string) error
}

// EventLog is the append-only audit trail.
type EventLog interface {
	AppendEvent(ctx context.Context, r EventRecord) error
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
}

// Repositories is the full persistence surface.
type Repositories interface {
	ProjectRepository
	MemberRepository
	TaskRepository
	DependencyRepository
	ChecklistRepository
	TimeEntryRepository
	EventLog
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
