package domain

// Role is a project-scoped member role.
type Role string

const (
	RoleProjectLead       Role = "PROJECT_LEAD"
	RoleCoLead            Role = "CO_LEAD"
	RoleTeamLead          Role = "TEAM_LEAD"
	RoleDepartmentHead    Role = "DEPARTMENT_HEAD"
	RoleSeniorContributor Role = "SENIOR_CONTRIBUTOR"
	RoleContributor       Role = "CONTRIBUTOR"
	RoleMentor            Role = "MENTOR"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleProjectLead,
	RoleCoLead,
	RoleTeamLead,
	RoleDepartmentHead,
	RoleSeniorContributor,
	RoleContributor,
	RoleMentor,
}

func (r Role) IsValid() bool {
	for _, v := range AllRoles {
		if v == r {
			return true
		}
	}
	return false
}

// Capability is a named permission held by a role.
type Capability string

const (
	CapEditProject   Capability = "canEditProject"
	CapManageTeam    Capability = "canManageTeam"
	CapCreateTasks   Capability = "canCreateTasks"
	CapAssignTasks   Capability = "canAssignTasks"
	CapApproveTasks  Capability = "canApproveTasks"
	CapManageBudget  Capability = "canManageBudget"
	CapViewAnalytics Capability = "canViewAnalytics"
	CapInviteMembers Capability = "canInviteMembers"
	CapRemoveMembers Capability = "canRemoveMembers"
	CapExportData    Capability = "canExportData"
)

var AllCapabilities = []Capability{
	CapEditProject,
	CapManageTeam,
	CapCreateTasks,
	CapAssignTasks,
	CapApproveTasks,
	CapManageBudget,
	CapViewAnalytics,
	CapInviteMembers,
	CapRemoveMembers,
	CapExportData,
}

// Action names an orchestrator operation that is gated by a capability.
type Action string

const (
	ActionCreateTask        Action = "create_task"
	ActionEditTask          Action = "edit_task"
	ActionAssignTask        Action = "assign_task"
	ActionApproveTask       Action = "approve_task"
	ActionDeleteTask        Action = "delete_task"
	ActionBlockTask         Action = "block_task"
	ActionUnblockTask       Action = "unblock_task"
	ActionAddDependency     Action = "add_dependency"
	ActionRemoveDependency  Action = "remove_dependency"
	ActionManageChecklist   Action = "manage_checklist"
	ActionLogTime           Action = "log_time"
	ActionManageTimeEntries Action = "manage_time_entries"
	ActionTransitionStage   Action = "transition_stage"
	ActionEditProject       Action = "edit_project"
	ActionDeleteProject     Action = "delete_project"
	ActionSetInvestment     Action = "set_investment"
	ActionInviteMember      Action = "invite_member"
	ActionChangeMemberRole  Action = "change_member_role"
	ActionRemoveMember      Action = "remove_member"
	ActionViewAnalytics     Action = "view_analytics"
	ActionExportData        Action = "export_data"
)

// Stage is a project lifecycle stage.
type Stage string

const (
	StageIdea        Stage = "IDEA"
	StageDraft       Stage = "DRAFT"
	StageProposed    Stage = "PROPOSED"
	StageUnderReview Stage = "UNDER_REVIEW"
	StageApproved    Stage = "APPROVED"
	StageRecruiting  Stage = "RECRUITING"
	StageActive      Stage = "ACTIVE"
	StagePaused      Stage = "PAUSED"
	StageCompleted   Stage = "COMPLETED"
	StageArchived    Stage = "ARCHIVED"
)

var AllStages = []Stage{
	StageIdea,
	StageDraft,
	StageProposed,
	StageUnderReview,
	StageApproved,
	StageRecruiting,
	StageActive,
	StagePaused,
	StageCompleted,
	StageArchived,
}

func (s Stage) IsValid() bool {
	for _, v := range AllStages {
		if v == s {
			return true
		}
	}
	return false
}

type TaskStatus string

const (
	TaskBacklog    TaskStatus = "BACKLOG"
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskReview     TaskStatus = "REVIEW"
	TaskDone       TaskStatus = "DONE"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// taskTransitions holds the moves reachable through a plain status update.
// BLOCKED is entered and left only through block/unblock.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskBacklog:    {TaskTodo, TaskCancelled},
	TaskTodo:       {TaskInProgress, TaskBacklog, TaskCancelled},
	TaskInProgress: {TaskReview, TaskTodo, TaskCancelled},
	TaskReview:     {TaskDone, TaskInProgress},
	TaskDone:       {TaskInProgress},
	TaskCancelled:  {TaskBacklog},
}

// CanTransitionTo reports whether a plain status update may move s to target.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskBacklog, TaskTodo, TaskInProgress, TaskReview, TaskDone, TaskBlocked, TaskCancelled:
		return true
	}
	return false
}

// IsOpen reports whether the task still represents pending work.
func (s TaskStatus) IsOpen() bool {
	return s != TaskDone && s != TaskCancelled
}

// Started reports whether work on the task has begun.
func (s TaskStatus) Started() bool {
	return s == TaskInProgress || s == TaskReview || s == TaskDone
}

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// DependencyType sets how strictly a dependent task waits on its prerequisite.
type DependencyType string

const (
	DepMustComplete   DependencyType = "MUST_COMPLETE"
	DepMustStart      DependencyType = "MUST_START"
	DepShouldComplete DependencyType = "SHOULD_COMPLETE"
)

func (d DependencyType) IsValid() bool {
	switch d {
	case DepMustComplete, DepMustStart, DepShouldComplete:
		return true
	}
	return false
}

type ConflictType string

const (
	ConflictCircularDependency ConflictType = "CIRCULAR_DEPENDENCY"
	ConflictTime               ConflictType = "TIME_CONFLICT"
	ConflictResource           ConflictType = "RESOURCE_CONFLICT"
	ConflictDuplicateTask      ConflictType = "DUPLICATE_TASK"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Quadrant is an Eisenhower matrix cell.
type Quadrant string

const (
	QuadrantDoFirst  Quadrant = "DO_FIRST"
	QuadrantSchedule Quadrant = "SCHEDULE"
	QuadrantDelegate Quadrant = "DELEGATE"
	QuadrantDelete   Quadrant = "DELETE"
)
