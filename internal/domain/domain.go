package domain

import "time"

type Project struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	Stage             Stage  `json:"stage" enum:"IDEA,DRAFT,PROPOSED,UNDER_REVIEW,APPROVED,RECRUITING,ACTIVE,PAUSED,COMPLETED,ARCHIVED"`
	OwnerID           string `json:"owner_id"`
	SeekingInvestment bool   `json:"seeking_investment"`
	CompletionPercent int    `json:"completion_percent"`
	Version           int64  `json:"version"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
}

type Task struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id"`
	ParentID       *string         `json:"parent_id,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         TaskStatus      `json:"status" enum:"BACKLOG,TODO,IN_PROGRESS,REVIEW,DONE,BLOCKED,CANCELLED"`
	Priority       Priority        `json:"priority" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	AssigneeID     *string         `json:"assignee_id,omitempty"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	EstimatedHours float64         `json:"estimated_hours,omitempty"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	Dependencies   []Dependency    `json:"dependencies,omitempty"`
	Block          *BlockInfo      `json:"block,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      string          `json:"created_at" format:"date-time"`
	UpdatedAt      string          `json:"updated_at" format:"date-time"`
	CompletedAt    *string         `json:"completed_at,omitempty" format:"date-time"`
}

// BlockInfo is present only while a task is BLOCKED.
type BlockInfo struct {
	BlockedBy      string     `json:"blocked_by"`
	Reason         string     `json:"reason"`
	BlockedAt      string     `json:"blocked_at" format:"date-time"`
	PreviousStatus TaskStatus `json:"previous_status"`
}

// Dependency is the edge "TaskID depends on DependsOnID".
type Dependency struct {
	TaskID      string         `json:"task_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type" enum:"MUST_COMPLETE,MUST_START,SHOULD_COMPLETE"`
	CreatedAt   string         `json:"created_at,omitempty" format:"date-time"`
}

type ChecklistItem struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Text        string  `json:"text"`
	Completed   bool    `json:"completed"`
	CompletedBy *string `json:"completed_by,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	Position    int     `json:"position"`
}

type TimeEntry struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	ProjectID   string  `json:"project_id"`
	UserID      string  `json:"user_id"`
	Date        string  `json:"date" format:"date"`
	Hours       float64 `json:"hours"`
	Billable    bool    `json:"billable"`
	HourlyRate  float64 `json:"hourly_rate"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// Notification is handed to the notifier after a mutation commits.
type Notification struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

type Conflict struct {
	Type     ConflictType `json:"type"`
	Severity Severity     `json:"severity"`
	TaskIDs  []string     `json:"task_ids"`
	Message  string       `json:"message"`
}

// Estimate is a three-point effort estimate in hours.
type Estimate struct {
	Optimistic  float64 `json:"optimistic"`
	Realistic   float64 `json:"realistic"`
	Pessimistic float64 `json:"pessimistic"`
}
