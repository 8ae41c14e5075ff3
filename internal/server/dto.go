package server

import (
	"time"

	"projecthub/internal/domain"
	"projecthub/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID                string `json:"id,omitempty"`
	Title             string `json:"title" minLength:"1"`
	Description       string `json:"description,omitempty"`
	SeekingInvestment bool   `json:"seeking_investment,omitempty"`
}

type UpdateProjectRequest struct {
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	SeekingInvestment *bool   `json:"seeking_investment,omitempty"`
}

type TransitionRequest struct {
	To   domain.Stage `json:"to"`
	Met  []string     `json:"met,omitempty" doc:"Requirements the caller asserts are satisfied"`
	Note string       `json:"note,omitempty"`
}

type MemberRequest struct {
	UserID string      `json:"user_id" minLength:"1"`
	Role   domain.Role `json:"role"`
}

type RoleRequest struct {
	Role domain.Role `json:"role"`
}

type CreateTaskRequest struct {
	ID             string            `json:"id,omitempty"`
	ParentID       string            `json:"parent_id,omitempty"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Status         domain.TaskStatus `json:"status,omitempty" enum:"BACKLOG,TODO"`
	Priority       domain.Priority   `json:"priority,omitempty" enum:"CRITICAL,HIGH,MEDIUM,LOW"`
	AssigneeID     string            `json:"assignee_id,omitempty"`
	StartDate      *time.Time        `json:"start_date,omitempty"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	EstimatedHours float64           `json:"estimated_hours,omitempty" minimum:"0"`
	DependsOn      []string          `json:"depends_on,omitempty"`
}

func (r CreateTaskRequest) options(projectID, actorID string) engine.TaskCreateOptions {
	return engine.TaskCreateOptions{
		ID:             r.ID,
		ProjectID:      projectID,
		ParentID:       r.ParentID,
		Title:          r.Title,
		Description:    r.Description,
		Status:         r.Status,
		Priority:       r.Priority,
		AssigneeID:     r.AssigneeID,
		StartDate:      r.StartDate,
		DueDate:        r.DueDate,
		EstimatedHours: r.EstimatedHours,
		DependsOn:      r.DependsOn,
		ActorID:        actorID,
	}
}

type UpdateTaskRequest struct {
	Title          *string            `json:"title,omitempty"`
	Description    *string            `json:"description,omitempty"`
	Priority       *domain.Priority   `json:"priority,omitempty"`
	Status         *domain.TaskStatus `json:"status,omitempty"`
	AssigneeID     *string            `json:"assignee_id,omitempty" doc:"Empty string unassigns"`
	ParentID       *string            `json:"parent_id,omitempty" doc:"Empty string detaches"`
	StartDate      *time.Time         `json:"start_date,omitempty"`
	DueDate        *time.Time         `json:"due_date,omitempty"`
	ClearSchedule  bool               `json:"clear_schedule,omitempty"`
	EstimatedHours *float64           `json:"estimated_hours,omitempty"`
}

func (r UpdateTaskRequest) options(taskID, actorID string) engine.TaskUpdateOptions {
	return engine.TaskUpdateOptions{
		ID:             taskID,
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
		Status:         r.Status,
		AssigneeID:     r.AssigneeID,
		ParentID:       r.ParentID,
		StartDate:      r.StartDate,
		DueDate:        r.DueDate,
		ClearSchedule:  r.ClearSchedule,
		EstimatedHours: r.EstimatedHours,
		ActorID:        actorID,
	}
}

type BlockRequest struct {
	Reason string `json:"reason"`
}

type DependencyRequest struct {
	DependsOnID string                `json:"depends_on_id"`
	Type        domain.DependencyType `json:"type,omitempty" enum:"MUST_COMPLETE,MUST_START,SHOULD_COMPLETE"`
}

type ChecklistAddRequest struct {
	Text string `json:"text"`
}

type ChecklistSetRequest struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

type TimeEntryRequest struct {
	Date        string  `json:"date,omitempty" format:"date"`
	Hours       float64 `json:"hours"`
	Billable    bool    `json:"billable,omitempty"`
	HourlyRate  float64 `json:"hourly_rate,omitempty"`
	Description string  `json:"description,omitempty"`
}

type TimeEntryPatchRequest struct {
	Date        *string  `json:"date,omitempty" format:"date"`
	Hours       *float64 `json:"hours,omitempty"`
	Billable    *bool    `json:"billable,omitempty"`
	HourlyRate  *float64 `json:"hourly_rate,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type CommandRequest struct {
	Action  domain.Action  `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type DependencyResponse struct {
	Added bool `json:"added"`
}

type CommandResponse struct {
	Action domain.Action `json:"action"`
	Result any           `json:"result,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
