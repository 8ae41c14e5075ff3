// Package auth holds the fixed role/capability matrix and the seniority
// ordering used for blocking decisions.
package auth

import (
	"fmt"

	"projecthub/internal/domain"
)

type capSet map[domain.Capability]struct{}

func caps(list ...domain.Capability) capSet {
	s := make(capSet, len(list))
	for _, c := range list {
		s[c] = struct{}{}
	}
	return s
}

var (
	contributorCaps = []domain.Capability{
		domain.CapCreateTasks,
	}
	seniorCaps = []domain.Capability{
		domain.CapCreateTasks, domain.CapAssignTasks, domain.CapViewAnalytics,
	}
	teamLeadCaps = []domain.Capability{
		domain.CapCreateTasks, domain.CapAssignTasks, domain.CapViewAnalytics,
		domain.CapManageTeam, domain.CapApproveTasks, domain.CapInviteMembers,
	}
	departmentHeadCaps = []domain.Capability{
		domain.CapCreateTasks, domain.CapAssignTasks, domain.CapViewAnalytics,
		domain.CapManageTeam, domain.CapApproveTasks, domain.CapInviteMembers,
		domain.CapManageBudget, domain.CapRemoveMembers, domain.CapExportData,
	}
)

var matrix = map[domain.Role]capSet{
	domain.RoleProjectLead:       caps(domain.AllCapabilities...),
	domain.RoleCoLead:            caps(domain.AllCapabilities...),
	domain.RoleDepartmentHead:    caps(departmentHeadCaps...),
	domain.RoleTeamLead:          caps(teamLeadCaps...),
	domain.RoleSeniorContributor: caps(seniorCaps...),
	domain.RoleContributor:       caps(contributorCaps...),
	domain.RoleMentor:            caps(domain.CapViewAnalytics, domain.CapApproveTasks),
}

// roleHierarchy orders roles for blocking. It is independent of the
// capability tiers.
var roleHierarchy = map[domain.Role]int{
	domain.RoleContributor:       1,
	domain.RoleSeniorContributor: 2,
	domain.RoleMentor:            3,
	domain.RoleTeamLead:          4,
	domain.RoleCoLead:            7,
	domain.RoleDepartmentHead:    8,
	domain.RoleProjectLead:       9,
}

var actionCapability = map[domain.Action]domain.Capability{
	domain.ActionCreateTask:        domain.CapCreateTasks,
	domain.ActionEditTask:          domain.CapCreateTasks,
	domain.ActionManageChecklist:   domain.CapCreateTasks,
	domain.ActionLogTime:           domain.CapCreateTasks,
	domain.ActionAddDependency:     domain.CapCreateTasks,
	domain.ActionRemoveDependency:  domain.CapCreateTasks,
	domain.ActionAssignTask:        domain.CapAssignTasks,
	domain.ActionApproveTask:       domain.CapApproveTasks,
	domain.ActionBlockTask:         domain.CapManageTeam,
	domain.ActionUnblockTask:       domain.CapManageTeam,
	domain.ActionDeleteTask:        domain.CapManageTeam,
	domain.ActionChangeMemberRole:  domain.CapManageTeam,
	domain.ActionManageTimeEntries: domain.CapManageTeam,
	domain.ActionTransitionStage:   domain.CapApproveTasks,
	domain.ActionEditProject:       domain.CapEditProject,
	domain.ActionDeleteProject:     domain.CapEditProject,
	domain.ActionSetInvestment:     domain.CapManageBudget,
	domain.ActionInviteMember:      domain.CapInviteMembers,
	domain.ActionRemoveMember:      domain.CapRemoveMembers,
	domain.ActionViewAnalytics:     domain.CapViewAnalytics,
	domain.ActionExportData:        domain.CapExportData,
}

// HasPermission reports whether role holds capability. Unknown roles and
// capabilities hold nothing.
func HasPermission(role domain.Role, capability domain.Capability) bool {
	set, ok := matrix[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

// RequiredCapability returns the capability gating action.
func RequiredCapability(action domain.Action) (domain.Capability, bool) {
	c, ok := actionCapability[action]
	return c, ok
}

// CanPerformAction resolves action to its capability and checks it.
func CanPerformAction(role domain.Role, action domain.Action) bool {
	c, ok := RequiredCapability(action)
	if !ok {
		return false
	}
	return HasPermission(role, c)
}

// Capabilities lists what role holds, in canonical order.
func Capabilities(role domain.Role) []domain.Capability {
	var out []domain.Capability
	for _, c := range domain.AllCapabilities {
		if HasPermission(role, c) {
			out = append(out, c)
		}
	}
	return out
}

// Seniority returns the blocking rank of role; 0 for no role.
func Seniority(role domain.Role) int {
	return roleHierarchy[role]
}

// CanBlock reports whether actor strictly outranks assignee.
func CanBlock(actor, assignee domain.Role) bool {
	return Seniority(actor) > Seniority(assignee)
}

// Authorize checks role against action and returns a typed error on refusal.
func Authorize(role domain.Role, action domain.Action) error {
	c, ok := RequiredCapability(action)
	if !ok {
		return &domain.PermissionDeniedError{Role: role, Reason: fmt.Sprintf("unknown action %s", action)}
	}
	if !HasPermission(role, c) {
		return &domain.PermissionDeniedError{Role: role, Capability: c}
	}
	return nil
}

// CanGrant reports whether actor may hand out role. Nobody can grant
// PROJECT_LEAD, and a role is grantable only when every capability it holds
// is also held by actor. Seniority plays no part here.
func CanGrant(actor, role domain.Role) bool {
	if role == domain.RoleProjectLead || !role.IsValid() {
		return false
	}
	for _, c := range domain.AllCapabilities {
		if HasPermission(role, c) && !HasPermission(actor, c) {
			return false
		}
	}
	return true
}
