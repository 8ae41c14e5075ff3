package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/config"
	"projecthub/internal/db"
	"projecthub/internal/domain"
	"projecthub/internal/engine"
	"projecthub/internal/events"
	"projecthub/internal/logging"
	"projecthub/internal/migrate"
	"projecthub/internal/repo"
)

var fixedNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	got []domain.Notification
	err error
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recorder) of(userID, typ string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.got {
		if n.UserID == userID && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Store  *repo.Store
	Notes  *recorder
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "ph.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	clock := func() time.Time { return fixedNow }
	store := repo.NewStore(conn, events.Writer{Now: clock})
	notes := &recorder{}
	eng := engine.New(store, config.Features{
		DetectTimeConflicts:  true,
		DetectDuplicateTasks: true,
		Notifications:        true,
	}, notes, logging.Discard())
	eng.Now = clock

	ctx := context.Background()
	_, err = eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Title: "Solar kiosk", Description: "test", ActorID: "lead"})
	require.NoError(t, err)
	return testEnv{Engine: eng, Store: store, Notes: notes, Ctx: ctx}
}

func (env testEnv) addMembers(t *testing.T, roles map[string]domain.Role) {
	t.Helper()
	for user, role := range roles {
		_, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: user, Role: role, ActorID: "lead"})
		require.NoError(t, err)
	}
}

func (env testEnv) task(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ProjectID == "" {
		opts.ProjectID = "proj-1"
	}
	if opts.ActorID == "" {
		opts.ActorID = "lead"
	}
	tk, err := env.Engine.CreateTask(env.Ctx, opts)
	require.NoError(t, err)
	return tk
}

func (env testEnv) move(t *testing.T, actorID, taskID string, statuses ...domain.TaskStatus) domain.Task {
	t.Helper()
	var tk domain.Task
	for _, s := range statuses {
		s := s
		var err error
		tk, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: taskID, Status: &s, ActorID: actorID})
		require.NoError(t, err, "move %s to %s", taskID, s)
	}
	return tk
}

func TestCreateProjectMakesCreatorLead(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.GetProject(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageIdea, p.Stage)
	assert.Equal(t, "lead", p.OwnerID)

	members, err := env.Engine.ListMembers(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleProjectLead, members[0].Role)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Title: "  ", ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNonMemberIsDenied(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.GetProject(env.Ctx, "stranger", "proj-1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: "proj-1", Title: "x", ActorID: "stranger"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.GetProject(env.Ctx, "lead", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{
		"mentor": domain.RoleMentor,
		"tl":     domain.RoleTeamLead,
		"c":      domain.RoleContributor,
	})
	transition := func(actorID string, to domain.Stage, met ...string) (domain.Project, error) {
		return env.Engine.TransitionStage(env.Ctx, engine.StageTransitionOptions{ProjectID: "proj-1", To: to, Met: met, ActorID: actorID})
	}

	p, err := transition("lead", domain.StageDraft, "title and description provided")
	require.NoError(t, err)
	assert.Equal(t, domain.StageDraft, p.Stage)

	before, err := env.Store.ListEvents(env.Ctx, domain.EventFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	version := p.Version

	_, err = transition("lead", domain.StageProposed, "problem statement complete")
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"team composition defined"}, invalid.Missing)

	after, err := env.Store.ListEvents(env.Ctx, domain.EventFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	p, err = env.Engine.GetProject(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, version, p.Version)
	assert.Equal(t, domain.StageDraft, p.Stage)

	_, err = transition("lead", domain.StageProposed, "problem statement complete", "team composition defined")
	require.NoError(t, err)
	_, err = transition("lead", domain.StageUnderReview, "proposal submitted")
	require.NoError(t, err)

	_, err = transition("c", domain.StageApproved, "mentor review complete", "feasibility confirmed")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = transition("tl", domain.StageApproved, "mentor review complete", "feasibility confirmed")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	p, err = transition("mentor", domain.StageApproved, "mentor review complete", "feasibility confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.StageApproved, p.Stage)
	assert.Len(t, env.Notes.of("lead", engine.NotifyStageChanged), 1)
	assert.Len(t, env.Notes.of("c", engine.NotifyStageChanged), 4)
	assert.Len(t, env.Notes.of("mentor", engine.NotifyStageChanged), 3)

	_, err = transition("lead", domain.StageActive)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = transition("lead", domain.StageApproved)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAvailableTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"c": domain.RoleContributor})

	opts, err := env.Engine.AvailableTransitions(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, domain.StageDraft, opts[0].To)
	assert.Equal(t, domain.StageArchived, opts[1].To)
	assert.True(t, opts[0].CanApprove)

	opts, err = env.Engine.AvailableTransitions(env.Ctx, "c", "proj-1")
	require.NoError(t, err)
	for _, o := range opts {
		assert.False(t, o.CanApprove)
	}
}

func TestBlockingFollowsSeniority(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{
		"tl": domain.RoleTeamLead,
		"dh": domain.RoleDepartmentHead,
	})
	dhTask := env.task(t, engine.TaskCreateOptions{Title: "budget review", AssigneeID: "dh"})
	tlTask := env.task(t, engine.TaskCreateOptions{Title: "sprint plan", AssigneeID: "tl"})

	_, err := env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: dhTask.ID, Reason: "waiting", ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: tlTask.ID, Reason: " ", ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	blocked, err := env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: tlTask.ID, Reason: "waiting on vendor", ActorID: "dh"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskBlocked, blocked.Status)
	require.NotNil(t, blocked.Block)
	assert.Equal(t, "dh", blocked.Block.BlockedBy)
	assert.Equal(t, "waiting on vendor", blocked.Block.Reason)
	assert.Equal(t, "2024-01-01T09:00:00Z", blocked.Block.BlockedAt)
	assert.Equal(t, domain.TaskTodo, blocked.Block.PreviousStatus)
	assert.Len(t, env.Notes.of("tl", engine.NotifyTaskBlocked), 1)

	_, err = env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: tlTask.ID, Reason: "again", ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	inProgress := domain.TaskInProgress
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tlTask.ID, Status: &inProgress, ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.Engine.UnblockTask(env.Ctx, "tl", tlTask.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	restored, err := env.Engine.UnblockTask(env.Ctx, "dh", tlTask.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, restored.Status)
	assert.Nil(t, restored.Block)
	assert.Len(t, env.Notes.of("tl", engine.NotifyTaskUnblocked), 1)
}

func TestReassigningFollowsSeniority(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{
		"tl": domain.RoleTeamLead,
		"dh": domain.RoleDepartmentHead,
		"c":  domain.RoleContributor,
	})
	dhTask := env.task(t, engine.TaskCreateOptions{Title: "budget review", AssigneeID: "dh"})
	tlTask := env.task(t, engine.TaskCreateOptions{Title: "sprint plan", AssigneeID: "tl"})
	cTask := env.task(t, engine.TaskCreateOptions{Title: "fix footer", AssigneeID: "c"})

	_, err := env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: dhTask.ID, Reason: "waiting", ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	toC := "c"
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: dhTask.ID, AssigneeID: &toC, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	unassign := ""
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: dhTask.ID, AssigneeID: &unassign, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: dhTask.ID, Reason: "waiting", ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	got, err := env.Engine.GetTask(env.Ctx, "lead", dhTask.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, "dh", *got.AssigneeID)
	assert.Equal(t, domain.TaskTodo, got.Status)

	toTL := "tl"
	moved, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: cTask.ID, AssigneeID: &toTL, ActorID: "tl"})
	require.NoError(t, err)
	assert.Equal(t, "tl", *moved.AssigneeID)

	handedOff, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: tlTask.ID, AssigneeID: &toC, ActorID: "tl"})
	require.NoError(t, err)
	assert.Equal(t, "c", *handedOff.AssigneeID)

	_, err = env.Engine.BlockTask(env.Ctx, engine.BlockOptions{TaskID: cTask.ID, Reason: "waiting on vendor", ActorID: "dh"})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: cTask.ID, AssigneeID: &toC, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: cTask.ID, AssigneeID: &toC, ActorID: "dh"})
	require.NoError(t, err)
}

func TestDependencyCycleIsRejected(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.task(t, engine.TaskCreateOptions{Title: "T1"})
	t2 := env.task(t, engine.TaskCreateOptions{Title: "T2"})
	t3 := env.task(t, engine.TaskCreateOptions{Title: "T3"})
	add := func(task, dep string) (bool, error) {
		return env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: task, DependsOnID: dep, ActorID: "lead"})
	}

	added, err := add(t1.ID, t2.ID)
	require.NoError(t, err)
	assert.True(t, added)
	_, err = add(t2.ID, t3.ID)
	require.NoError(t, err)

	_, err = add(t3.ID, t1.ID)
	var cycle *domain.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{t3.ID, t1.ID, t2.ID, t3.ID}, cycle.Path)

	got, err := env.Engine.GetTask(env.Ctx, "lead", t3.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DependsOn)

	added, err = add(t1.ID, t2.ID)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = add(t1.ID, t1.ID)
	assert.ErrorIs(t, err, domain.ErrCircularDependency)

	err = env.Engine.RemoveDependency(env.Ctx, engine.DependencyOptions{TaskID: t3.ID, DependsOnID: t1.ID, ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrDependencyNotFound)
	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, engine.DependencyOptions{TaskID: t1.ID, DependsOnID: t2.ID, ActorID: "lead"}))

	deps, err := env.Store.ListDependencies(env.Ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

func TestConcurrentOppositeEdgesOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		a := env.task(t, engine.TaskCreateOptions{Title: "A"})
		b := env.task(t, engine.TaskCreateOptions{Title: "B"})

		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
			wg.Add(1)
			go func(j int, task, dep string) {
				defer wg.Done()
				<-start
				_, errs[j] = env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: task, DependsOnID: dep, ActorID: "lead"})
			}(j, pair[0], pair[1])
		}
		close(start)
		wg.Wait()

		failures := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrCircularDependency)
				failures++
			}
		}
		assert.Equal(t, 1, failures)
	}
	conflicts, err := env.Engine.Conflicts(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	for _, c := range conflicts {
		assert.NotEqual(t, domain.ConflictCircularDependency, c.Type)
	}
}

func TestStatusGatesAndApproval(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"c": domain.RoleContributor})
	dep := env.task(t, engine.TaskCreateOptions{Title: "schema"})
	main := env.task(t, engine.TaskCreateOptions{Title: "api", AssigneeID: "c", DependsOn: []string{dep.ID}})
	assert.Equal(t, []string{dep.ID}, main.DependsOn)
	assert.Len(t, env.Notes.of("c", engine.NotifyTaskAssigned), 1)

	env.move(t, "c", main.ID, domain.TaskInProgress, domain.TaskReview)
	assert.Len(t, env.Notes.of("lead", engine.NotifyTaskReview), 1)

	done := domain.TaskDone
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: main.ID, Status: &done, ActorID: "c"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: main.ID, Status: &done, ActorID: "lead"})
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"task " + dep.ID + " must be done"}, invalid.Missing)

	env.move(t, "lead", dep.ID, domain.TaskInProgress, domain.TaskReview, domain.TaskDone)
	p, err := env.Engine.GetProject(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 50, p.CompletionPercent)

	finished := env.move(t, "lead", main.ID, domain.TaskDone)
	require.NotNil(t, finished.CompletedAt)
	p, err = env.Engine.GetProject(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 100, p.CompletionPercent)

	todo := domain.TaskTodo
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: dep.ID, Status: &todo, ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	reopened := env.move(t, "lead", dep.ID, domain.TaskInProgress)
	assert.Nil(t, reopened.CompletedAt)
}

func TestMustStartDependency(t *testing.T) {
	env := newTestEnv(t)
	x := env.task(t, engine.TaskCreateOptions{Title: "design"})
	y := env.task(t, engine.TaskCreateOptions{Title: "build"})
	_, err := env.Engine.AddDependency(env.Ctx, engine.DependencyOptions{TaskID: y.ID, DependsOnID: x.ID, Type: domain.DepMustStart, ActorID: "lead"})
	require.NoError(t, err)

	inProgress := domain.TaskInProgress
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: y.ID, Status: &inProgress, ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	env.move(t, "lead", x.ID, domain.TaskInProgress)
	got := env.move(t, "lead", y.ID, domain.TaskInProgress)
	assert.Equal(t, domain.TaskInProgress, got.Status)
}

func TestTimeEntries(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"c": domain.RoleContributor, "c2": domain.RoleContributor})
	tk := env.task(t, engine.TaskCreateOptions{Title: "wiring"})

	for _, bad := range []engine.TimeLogOptions{
		{Hours: 0.25, Date: "2024-01-02"},
		{Hours: 1.1, Date: "2024-01-02"},
		{Hours: 24.5, Date: "2024-01-02"},
		{Hours: 1, Date: "01/02/2024"},
		{Hours: 1, Date: "2024-01-02", HourlyRate: -1},
	} {
		bad.TaskID, bad.ActorID = tk.ID, "c"
		_, err := env.Engine.LogTime(env.Ctx, bad)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", bad)
	}

	entry, err := env.Engine.LogTime(env.Ctx, engine.TimeLogOptions{TaskID: tk.ID, Date: "2024-01-02", Hours: 1.25, Billable: true, HourlyRate: 50, ActorID: "c"})
	require.NoError(t, err)
	assert.Equal(t, "proj-1", entry.ProjectID)
	assert.Equal(t, "c", entry.UserID)

	hours := 2.0
	_, err = env.Engine.UpdateTimeEntry(env.Ctx, engine.TimeEntryUpdateOptions{ID: entry.ID, Hours: &hours, ActorID: "c2"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	updated, err := env.Engine.UpdateTimeEntry(env.Ctx, engine.TimeEntryUpdateOptions{ID: entry.ID, Hours: &hours, ActorID: "lead"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, updated.Hours)

	own, err := env.Engine.ListTimeEntries(env.Ctx, "c2", domain.TimeEntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Empty(t, own)
	all, err := env.Engine.ListTimeEntries(env.Ctx, "lead", domain.TimeEntryFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, env.Engine.DeleteTimeEntry(env.Ctx, "c", entry.ID))
	_, err = env.Store.GetTimeEntry(env.Ctx, entry.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMembership(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"tl": domain.RoleTeamLead, "c": domain.RoleContributor})

	_, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "new", Role: domain.RoleDepartmentHead, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "new", Role: domain.RoleProjectLead, ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "c", Role: domain.RoleContributor, ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "new", Role: domain.RoleContributor, ActorID: "tl"})
	require.NoError(t, err)
	assert.Len(t, env.Notes.of("new", engine.NotifyMemberAdded), 1)

	_, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "lead", Role: domain.RoleContributor, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	m, err := env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "c", Role: domain.RoleSeniorContributor, ActorID: "tl"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeniorContributor, m.Role)
	assert.Len(t, env.Notes.of("c", engine.NotifyRoleChanged), 1)

	tk := env.task(t, engine.TaskCreateOptions{Title: "owned", AssigneeID: "c"})
	assert.ErrorIs(t, env.Engine.RemoveMember(env.Ctx, "lead", "proj-1", "lead"), domain.ErrValidation)
	assert.ErrorIs(t, env.Engine.RemoveMember(env.Ctx, "tl", "proj-1", "c"), domain.ErrPermissionDenied)
	require.NoError(t, env.Engine.RemoveMember(env.Ctx, "lead", "proj-1", "c"))

	got, err := env.Engine.GetTask(env.Ctx, "lead", tk.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)
	_, err = env.Engine.ListMembers(env.Ctx, "c", "proj-1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestRoleGrantsFollowCapabilities(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"dh": domain.RoleDepartmentHead, "tl": domain.RoleTeamLead})
	title := "Solar kiosk v2"

	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "proj-1", Title: &title, ActorID: "dh"})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "dh", Role: domain.RoleCoLead, ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "tl", Role: domain.RoleCoLead, ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "ally", Role: domain.RoleCoLead, ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "proj-1", Title: &title, ActorID: "dh"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	m, err := env.Store.GetMember(env.Ctx, "proj-1", "dh")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDepartmentHead, m.Role)

	m, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "tl", Role: domain.RoleDepartmentHead, ActorID: "dh"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDepartmentHead, m.Role)
	_, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "tl", Role: domain.RoleTeamLead, ActorID: "tl"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	m, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "dh", Role: domain.RoleCoLead, ActorID: "lead"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCoLead, m.Role)
}

func TestProjectEditingAndDeletion(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"s": domain.RoleSeniorContributor})

	title := "Solar kiosk v2"
	_, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "proj-1", Title: &title, ActorID: "s"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	seeking := true
	p, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "proj-1", Title: &title, SeekingInvestment: &seeking, ActorID: "lead"})
	require.NoError(t, err)
	assert.Equal(t, title, p.Title)
	assert.True(t, p.SeekingInvestment)

	tk := env.task(t, engine.TaskCreateOptions{Title: "only"})
	err = env.Engine.DeleteProject(env.Ctx, "lead", "proj-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, env.Engine.DeleteTask(env.Ctx, "lead", tk.ID))
	require.NoError(t, env.Engine.DeleteProject(env.Ctx, "lead", "proj-1"))
	_, err = env.Store.GetProject(env.Ctx, "proj-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationFailureDoesNotFailAction(t *testing.T) {
	env := newTestEnv(t)
	env.Notes.err = errors.New("push gateway down")

	_, err := env.Engine.AddMember(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "c", Role: domain.RoleContributor, ActorID: "lead"})
	require.NoError(t, err)
	assert.Len(t, env.Notes.of("c", engine.NotifyMemberAdded), 1)

	env.Engine.Features.Notifications = false
	_, err = env.Engine.ChangeMemberRole(env.Ctx, engine.MemberOptions{ProjectID: "proj-1", UserID: "c", Role: domain.RoleSeniorContributor, ActorID: "lead"})
	require.NoError(t, err)
	assert.Empty(t, env.Notes.of("c", engine.NotifyRoleChanged))
}

func TestEstimateAndCompletion(t *testing.T) {
	env := newTestEnv(t)
	due := fixedNow.Add(24 * time.Hour)
	tk := env.task(t, engine.TaskCreateOptions{Title: "launch", Priority: domain.PriorityHigh, DueDate: &due, EstimatedHours: 10})

	est, err := env.Engine.EstimateTask(env.Ctx, "lead", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Estimate{Optimistic: 8, Realistic: 10, Pessimistic: 12}, est.Estimate)
	assert.Equal(t, domain.QuadrantDoFirst, est.Quadrant)
	assert.False(t, est.Complete)

	item, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistAddOptions{TaskID: tk.ID, Text: "press release", ActorID: "lead"})
	require.NoError(t, err)
	env.move(t, "lead", tk.ID, domain.TaskInProgress, domain.TaskReview, domain.TaskDone)

	est, err = env.Engine.EstimateTask(env.Ctx, "lead", tk.ID)
	require.NoError(t, err)
	assert.False(t, est.Complete)

	checked := true
	item, err = env.Engine.SetChecklistItem(env.Ctx, engine.ChecklistSetOptions{ItemID: item.ID, Completed: &checked, ActorID: "lead"})
	require.NoError(t, err)
	require.NotNil(t, item.CompletedBy)
	assert.Equal(t, "lead", *item.CompletedBy)

	est, err = env.Engine.EstimateTask(env.Ctx, "lead", tk.ID)
	require.NoError(t, err)
	assert.True(t, est.Complete)

	require.NoError(t, env.Engine.DeleteChecklistItem(env.Ctx, "lead", item.ID))
	got, err := env.Engine.GetTask(env.Ctx, "lead", tk.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Checklist)
}

func TestConflictsAndEvents(t *testing.T) {
	env := newTestEnv(t)
	env.addMembers(t, map[string]domain.Role{"c": domain.RoleContributor})
	env.task(t, engine.TaskCreateOptions{Title: "Write docs"})
	env.task(t, engine.TaskCreateOptions{Title: "write docs!"})

	_, err := env.Engine.Conflicts(env.Ctx, "c", "proj-1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	conflicts, err := env.Engine.Conflicts(env.Ctx, "lead", "proj-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ConflictDuplicateTask, conflicts[0].Type)
	assert.Equal(t, domain.SeverityWarning, conflicts[0].Severity)

	_, err = env.Engine.Events(env.Ctx, "c", domain.EventFilter{ProjectID: "proj-1"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	list, err := env.Engine.Events(env.Ctx, "lead", domain.EventFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, events.ProjectCreated, list[0].Type)
}

func TestPerformDispatchesCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.Engine.Perform(env.Ctx, engine.Command{
		Action:    domain.ActionCreateTask,
		ActorID:   "lead",
		ProjectID: "proj-1",
		Payload:   json.RawMessage(`{"title":"via command","priority":"LOW"}`),
	})
	require.NoError(t, err)
	created, ok := out.(domain.Task)
	require.True(t, ok)
	assert.Equal(t, domain.PriorityLow, created.Priority)

	other := env.task(t, engine.TaskCreateOptions{Title: "other"})
	out, err = env.Engine.Perform(env.Ctx, engine.Command{
		Action:  domain.ActionAddDependency,
		ActorID: "lead",
		Payload: json.RawMessage(`{"task_id":"` + created.ID + `","depends_on_id":"` + other.ID + `"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"added": true}, out)

	_, err = env.Engine.Perform(env.Ctx, engine.Command{Action: "fly", ActorID: "lead"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Perform(env.Ctx, engine.Command{
		Action: domain.ActionBlockTask, ActorID: "lead", Payload: json.RawMessage(`{"task_id":"x","color":"red"}`),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "proj-2", Title: "Wind kiosk", Description: "test", ActorID: "lead"})
	require.NoError(t, err)
	foreign := env.task(t, engine.TaskCreateOptions{ProjectID: "proj-2", Title: "elsewhere"})

	_, err = env.Engine.Perform(env.Ctx, engine.Command{
		Action: domain.ActionBlockTask, ActorID: "lead", ProjectID: "proj-1",
		Payload: json.RawMessage(`{"task_id":"` + foreign.ID + `","reason":"waiting"}`),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "task_id", ve.Field)
	got, err := env.Engine.GetTask(env.Ctx, "lead", foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, got.Status)

	_, err = env.Engine.Perform(env.Ctx, engine.Command{
		Action: domain.ActionCreateTask, ActorID: "lead", ProjectID: "proj-1",
		Payload: json.RawMessage(`{"project_id":"proj-2","title":"smuggled"}`),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.Engine.Perform(env.Ctx, engine.Command{
		Action: domain.ActionBlockTask, ActorID: "lead", ProjectID: "proj-2",
		Payload: json.RawMessage(`{"task_id":"` + foreign.ID + `","reason":"waiting"}`),
	})
	require.NoError(t, err)
}
