// Package lifecycle defines the project stage graph.
package lifecycle

import (
	"fmt"

	"projecthub/internal/domain"
)

type Edge struct {
	From         domain.Stage  `json:"from"`
	To           domain.Stage  `json:"to"`
	Requirements []string      `json:"requirements"`
	Approvers    []domain.Role `json:"approvers,omitempty"`
	AutoAdvance  bool          `json:"auto_advance"`
}

// Decision is the outcome of CanTransition.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Missing []string `json:"missing_requirements,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Options toggles edges that are off by default.
type Options struct {
	ArchiveCompleted bool
}

// Graph is an immutable set of stage edges.
type Graph struct {
	edges map[domain.Stage][]Edge
}

const archiveReason = "archive reason recorded"

func baseEdges() []Edge {
	leads := []domain.Role{domain.RoleProjectLead, domain.RoleCoLead}
	reviewers := []domain.Role{domain.RoleMentor, domain.RoleDepartmentHead}
	lead := []domain.Role{domain.RoleProjectLead}
	return []Edge{
		{From: domain.StageIdea, To: domain.StageDraft, Requirements: []string{"title and description provided"}, Approvers: leads},
		{From: domain.StageDraft, To: domain.StageProposed, Requirements: []string{"problem statement complete", "team composition defined"}, Approvers: leads},
		{From: domain.StageProposed, To: domain.StageUnderReview, Requirements: []string{"proposal submitted"}, Approvers: lead},
		{From: domain.StageUnderReview, To: domain.StageApproved, Requirements: []string{"mentor review complete", "feasibility confirmed"}, Approvers: reviewers},
		{From: domain.StageUnderReview, To: domain.StageDraft, Requirements: []string{"revision requested"}, Approvers: reviewers},
		{From: domain.StageApproved, To: domain.StageRecruiting, Requirements: []string{"open roles published"}, Approvers: leads},
		{From: domain.StageRecruiting, To: domain.StageActive, Requirements: []string{"minimum team size reached", "kickoff scheduled"}, Approvers: leads},
		{From: domain.StageActive, To: domain.StagePaused, Requirements: []string{"pause reason recorded"}, AutoAdvance: true},
		{From: domain.StagePaused, To: domain.StageActive, Requirements: []string{"blockers resolved"}, AutoAdvance: true},
		{From: domain.StageActive, To: domain.StageCompleted, Requirements: []string{"all milestones delivered", "final report submitted"}, Approvers: []domain.Role{domain.RoleProjectLead, domain.RoleDepartmentHead}},
		{From: domain.StageIdea, To: domain.StageArchived, Requirements: []string{archiveReason}, Approvers: lead},
		{From: domain.StageDraft, To: domain.StageArchived, Requirements: []string{archiveReason}, Approvers: lead},
		{From: domain.StagePaused, To: domain.StageArchived, Requirements: []string{archiveReason}, Approvers: lead},
	}
}

// New builds the stage graph. COMPLETED has no way out unless
// opts.ArchiveCompleted is set.
func New(opts Options) Graph {
	edges := baseEdges()
	if opts.ArchiveCompleted {
		edges = append(edges, Edge{
			From:         domain.StageCompleted,
			To:           domain.StageArchived,
			Requirements: []string{archiveReason},
			Approvers:    []domain.Role{domain.RoleProjectLead},
		})
	}
	g := Graph{edges: make(map[domain.Stage][]Edge)}
	for _, e := range edges {
		g.edges[e.From] = append(g.edges[e.From], e)
	}
	return g
}

// Edges returns the outgoing edges of from.
func (g Graph) Edges(from domain.Stage) []Edge {
	out := make([]Edge, len(g.edges[from]))
	copy(out, g.edges[from])
	return out
}

// Edge returns the edge from -> to if it exists.
func (g Graph) Edge(from, to domain.Stage) (Edge, bool) {
	for _, e := range g.edges[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// CanTransition decides whether role may move a project from one stage to
// another given the requirements it asserts are met. Anything not explicitly
// permitted is refused.
func (g Graph) CanTransition(from, to domain.Stage, role domain.Role, met []string) Decision {
	if from == to {
		return Decision{Reason: fmt.Sprintf("project is already %s", from)}
	}
	edge, ok := g.Edge(from, to)
	if !ok {
		return Decision{Reason: fmt.Sprintf("no transition from %s to %s", from, to)}
	}
	if !edge.ApprovedBy(role) {
		return Decision{Reason: fmt.Sprintf("role %s cannot approve %s -> %s", role, from, to)}
	}
	have := make(map[string]struct{}, len(met))
	for _, m := range met {
		have[m] = struct{}{}
	}
	var missing []string
	for _, req := range edge.Requirements {
		if _, ok := have[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return Decision{Missing: missing, Reason: "requirements not met"}
	}
	return Decision{Allowed: true}
}

// ApprovedBy reports whether role may take the edge. Auto edges are taken by
// the project lead on the system's behalf.
func (e Edge) ApprovedBy(role domain.Role) bool {
	if e.AutoAdvance {
		return role == domain.RoleProjectLead
	}
	for _, r := range e.Approvers {
		if r == role {
			return true
		}
	}
	return false
}
