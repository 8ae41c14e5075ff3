package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"projecthub/internal/domain"
)

func TestCanTransitionReportsMissingRequirements(t *testing.T) {
	g := New(Options{})

	d := g.CanTransition(domain.StageIdea, domain.StageDraft, domain.RoleProjectLead, nil)

	assert.False(t, d.Allowed)
	assert.Equal(t, []string{"title and description provided"}, d.Missing)
}

func TestCanTransitionAllowsApprover(t *testing.T) {
	g := New(Options{})

	d := g.CanTransition(domain.StageIdea, domain.StageDraft, domain.RoleProjectLead, []string{"title and description provided"})

	assert.True(t, d.Allowed)
	assert.Empty(t, d.Missing)
}

func TestCanTransitionRejectsNonApprover(t *testing.T) {
	g := New(Options{})
	met := []string{"mentor review complete", "feasibility confirmed"}

	assert.False(t, g.CanTransition(domain.StageUnderReview, domain.StageApproved, domain.RoleTeamLead, met).Allowed)
	assert.True(t, g.CanTransition(domain.StageUnderReview, domain.StageApproved, domain.RoleMentor, met).Allowed)
}

func TestUndefinedEdgeFailsClosed(t *testing.T) {
	g := New(Options{})

	d := g.CanTransition(domain.StageIdea, domain.StageActive, domain.RoleProjectLead, []string{"anything"})

	assert.False(t, d.Allowed)
	assert.Empty(t, d.Missing)
	assert.Contains(t, d.Reason, "no transition")
}

func TestAutoAdvanceEdgesNeedProjectLead(t *testing.T) {
	g := New(Options{})
	met := []string{"pause reason recorded"}

	assert.True(t, g.CanTransition(domain.StageActive, domain.StagePaused, domain.RoleProjectLead, met).Allowed)
	assert.False(t, g.CanTransition(domain.StageActive, domain.StagePaused, domain.RoleCoLead, met).Allowed)
	assert.True(t, g.CanTransition(domain.StagePaused, domain.StageActive, domain.RoleProjectLead, []string{"blockers resolved"}).Allowed)
}

func TestArchivedIsTerminal(t *testing.T) {
	g := New(Options{ArchiveCompleted: true})

	assert.Empty(t, g.Edges(domain.StageArchived))
}

func TestCompletedArchiveIsOptIn(t *testing.T) {
	met := []string{"archive reason recorded"}

	off := New(Options{})
	assert.Empty(t, off.Edges(domain.StageCompleted))
	assert.False(t, off.CanTransition(domain.StageCompleted, domain.StageArchived, domain.RoleProjectLead, met).Allowed)

	on := New(Options{ArchiveCompleted: true})
	require.Len(t, on.Edges(domain.StageCompleted), 1)
	assert.True(t, on.CanTransition(domain.StageCompleted, domain.StageArchived, domain.RoleProjectLead, met).Allowed)
}

func TestEdgesReturnsCopy(t *testing.T) {
	g := New(Options{})
	edges := g.Edges(domain.StageIdea)
	require.NotEmpty(t, edges)
	edges[0].To = domain.StageCompleted

	_, ok := g.Edge(domain.StageIdea, domain.StageCompleted)
	assert.False(t, ok)
}

func TestNoSelfTransitions(t *testing.T) {
	g := New(Options{ArchiveCompleted: true})
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.SampledFrom(domain.AllStages).Draw(t, "stage")
		r := rapid.SampledFrom(domain.AllRoles).Draw(t, "role")

		if g.CanTransition(s, s, r, []string{"archive reason recorded"}).Allowed {
			t.Fatalf("self transition allowed on %s", s)
		}
		for _, e := range g.Edges(s) {
			if e.To == s {
				t.Fatalf("self edge on %s", s)
			}
		}
	})
}

func TestAllowedImpliesEdgeExists(t *testing.T) {
	g := New(Options{})
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(domain.AllStages).Draw(t, "from")
		to := rapid.SampledFrom(domain.AllStages).Draw(t, "to")
		r := rapid.SampledFrom(domain.AllRoles).Draw(t, "role")
		edge, ok := g.Edge(from, to)
		met := edge.Requirements

		d := g.CanTransition(from, to, r, met)
		if d.Allowed && !ok {
			t.Fatalf("%s -> %s allowed without an edge", from, to)
		}
	})
}
