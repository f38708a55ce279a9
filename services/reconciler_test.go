package services

import (
	"context"
	"errors"
	"testing"
	"teamhub/logger"
	"teamhub/models"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(env *testEnv) *Reconciler {
	return NewReconciler(env.teams, env.relations, env.tasks, 0, logger.Nop())
}

func TestSweepAddsMissingRowsAndUserDocs(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)

	// Only the team document knows about bob.
	require.NoError(t, env.teams.AddMemberID(env.ctx, "bob", teamID))

	report, err := newTestReconciler(env).Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Teams)
	assert.Equal(t, 1, report.RowsAdded)
	assert.Equal(t, 1, report.UserDocsAdded)

	env.requireMember(t, "bob", teamID)
}

func TestSweepRemovesStrayRowsAndUserDocs(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)

	// The relation row and user document claim a membership the team never granted.
	require.NoError(t, env.relations.InsertMembershipRow(env.ctx, "mallory", teamID))
	require.NoError(t, env.teams.AddTeamIDToUser(env.ctx, "mallory", teamID))

	r := newTestReconciler(env)
	r.now = func() time.Time { return time.Now().Add(DefaultSweepGrace + time.Minute) }

	report, err := r.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsRemoved)
	assert.Equal(t, 1, report.UserDocsRemoved)
	assert.Zero(t, report.SkippedRecent)

	env.requireNotMember(t, "mallory", teamID)
	env.requireMember(t, "leader", teamID)
}

func TestSweepKeepsRecentStrayEntries(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)

	require.NoError(t, env.relations.InsertMembershipRow(env.ctx, "mallory", teamID))
	require.NoError(t, env.teams.AddTeamIDToUser(env.ctx, "mallory", teamID))

	report, err := newTestReconciler(env).Sweep(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.RowsRemoved)
	assert.Zero(t, report.UserDocsRemoved)
	assert.Equal(t, 2, report.SkippedRecent)

	rows, err := env.relations.ListMembershipRowsForUser(env.ctx, "mallory")
	require.NoError(t, err)
	assert.Contains(t, rows, teamID)

	// With no grace the same entries are stray.
	r := newTestReconciler(env)
	r.SetGracePeriod(0)
	report, err = r.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsRemoved)
	assert.Equal(t, 1, report.UserDocsRemoved)
	env.requireNotMember(t, "mallory", teamID)
}

func TestSweepDuringDirectJoinKeepsMembership(t *testing.T) {
	var faulty *faultyStore
	env := newTestEnvWith(t, func(s AggregateStore) AggregateStore {
		faulty = &faultyStore{AggregateStore: s}
		return faulty
	})
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)

	r := newTestReconciler(env)
	var swept SweepReport
	faulty.beforeAddMember = func() {
		// The relation row and user document exist; the team document does not list bob yet.
		var err error
		swept, err = r.Sweep(env.ctx)
		require.NoError(t, err)
	}

	require.NoError(t, env.svc.DirectJoin(env.ctx, "bob", teamID))
	assert.Equal(t, 2, swept.SkippedRecent)
	assert.Zero(t, swept.RowsRemoved+swept.UserDocsRemoved)

	env.requireMember(t, "bob", teamID)
}

func TestSweepDuringAcceptKeepsMembership(t *testing.T) {
	var faulty *faultyStore
	env := newTestEnvWith(t, func(s AggregateStore) AggregateStore {
		faulty = &faultyStore{AggregateStore: s}
		return faulty
	})
	teamID := env.createTeam(t, "leader", "Chess Club", models.PrivacyInviteOnly)
	req, err := env.svc.SendJoinRequest(env.ctx, "carol", teamID)
	require.NoError(t, err)

	r := newTestReconciler(env)
	faulty.beforeAddMember = func() {
		_, err := r.Sweep(env.ctx)
		require.NoError(t, err)
	}

	require.NoError(t, env.svc.AcceptRequest(env.ctx, "leader", teamID, req.RequestID))
	env.requireMember(t, "carol", teamID)
}

func TestSweepRelistsLeader(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)
	require.NoError(t, env.teams.RemoveMemberID(env.ctx, "leader", teamID))

	report, err := newTestReconciler(env).Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LeadersRelisted)

	env.requireMember(t, "leader", teamID)
}

func TestSweepConsistentStoresIsNoop(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)
	require.NoError(t, env.svc.DirectJoin(env.ctx, "bob", teamID))

	report, err := newTestReconciler(env).Sweep(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Teams)
	assert.Zero(t, report.Repairs())
}

func TestDrainRepairsPartialDirectJoin(t *testing.T) {
	boom := errors.New("aggregate store unavailable")
	var faulty *faultyStore
	env := newTestEnvWith(t, func(s AggregateStore) AggregateStore {
		faulty = &faultyStore{AggregateStore: s}
		return faulty
	})
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)

	faulty.failAddMember = boom
	require.ErrorIs(t, env.svc.DirectJoin(env.ctx, "bob", teamID), boom)

	// The team document never listed bob, so the repair backs the join out.
	report, err := newTestReconciler(env).DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Applied: 1}, report)

	env.requireNotMember(t, "bob", teamID)
}

func TestDrainRepairsPartialLeave(t *testing.T) {
	boom := errors.New("user document write failed")
	var faulty *faultyStore
	env := newTestEnvWith(t, func(s AggregateStore) AggregateStore {
		faulty = &faultyStore{AggregateStore: s}
		return faulty
	})
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)
	require.NoError(t, env.svc.DirectJoin(env.ctx, "dave", teamID))

	faulty.failRemoveUser = boom
	require.ErrorIs(t, env.svc.LeaveOrRemove(env.ctx, "dave", teamID, "dave"), boom)

	report, err := newTestReconciler(env).DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	env.requireNotMember(t, "dave", teamID)
}

func TestDrainCompletesPartialAccept(t *testing.T) {
	boom := errors.New("aggregate store unavailable")
	var faulty *faultyStore
	env := newTestEnvWith(t, func(s AggregateStore) AggregateStore {
		faulty = &faultyStore{AggregateStore: s}
		return faulty
	})
	teamID := env.createTeam(t, "leader", "Chess Club", models.PrivacyInviteOnly)
	req, err := env.svc.SendJoinRequest(env.ctx, "carol", teamID)
	require.NoError(t, err)

	faulty.failAddMember = boom
	require.ErrorIs(t, env.svc.AcceptRequest(env.ctx, "leader", teamID, req.RequestID), boom)
	faulty.failAddMember = nil

	// The approval is kept: the repair finishes the membership instead of backing it out.
	r := newTestReconciler(env)
	report, err := r.DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Applied: 1}, report)

	env.requireMember(t, "carol", teamID)

	count, err := env.relations.CountPendingRequests(env.ctx, teamID)
	require.NoError(t, err)
	assert.Zero(t, count)

	// A later sweep, even past the grace period, leaves the membership alone.
	r.now = func() time.Time { return time.Now().Add(DefaultSweepGrace + time.Minute) }
	swept, err := r.Sweep(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, swept.Repairs())
	env.requireMember(t, "carol", teamID)
}

func TestDrainCompleteMembershipForDeletedTeam(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.relations.InsertMembershipRow(env.ctx, "carol", "gone"))
	require.NoError(t, env.teams.AddTeamIDToUser(env.ctx, "carol", "gone"))
	require.NoError(t, env.tasks.Push(env.ctx, models.CleanupTask{
		Kind:   models.CleanupCompleteMembership,
		TeamID: "gone",
		UserID: "carol",
	}))

	report, err := newTestReconciler(env).DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	rows, err := env.relations.ListMembershipRowsForUser(env.ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, rows)
	user, err := env.teams.GetUser(env.ctx, "carol")
	require.NoError(t, err)
	assert.NotContains(t, user.Teams, "gone")
}

func TestDrainDeleteRequestTask(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Chess Club", models.PrivacyInviteOnly)
	req, err := env.relations.InsertJoinRequest(env.ctx, teamID, "carol")
	require.NoError(t, err)

	require.NoError(t, env.tasks.Push(env.ctx, models.CleanupTask{
		Kind:      models.CleanupDeleteRequest,
		TeamID:    teamID,
		UserID:    "carol",
		RequestID: req.RequestID,
	}))

	report, err := newTestReconciler(env).DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	_, err = env.relations.GetJoinRequest(env.ctx, req.RequestID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDrainRequeuesThenDrops(t *testing.T) {
	env := newTestEnv(t)
	r := newTestReconciler(env)

	require.NoError(t, env.tasks.Push(env.ctx, models.CleanupTask{Kind: "unknown", TeamID: "t1"}))

	for attempt := 1; attempt < MaxCleanupAttempts; attempt++ {
		report, err := r.DrainTasks(env.ctx)
		require.NoError(t, err)
		assert.Equal(t, DrainReport{Requeued: 1}, report, "attempt %d", attempt)
	}

	task, err := env.tasks.Pop(env.ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, MaxCleanupAttempts-1, task.Attempts)
	assert.Contains(t, task.LastError, "unknown cleanup task kind")
	require.NoError(t, env.tasks.Push(env.ctx, *task))

	report, err := r.DrainTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{Dropped: 1}, report)

	n, err := env.tasks.Len(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcilerStartStop(t *testing.T) {
	env := newTestEnv(t)
	teamID := env.createTeam(t, "leader", "Hikers", models.PrivacyOpen)
	require.NoError(t, env.teams.AddMemberID(env.ctx, "bob", teamID))

	r := NewReconciler(env.teams, env.relations, env.tasks, 10*time.Millisecond, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	r.Start(ctx)

	assert.Eventually(t, func() bool {
		rows, err := env.relations.ListMembershipRowsForUser(env.ctx, "bob")
		return err == nil && len(rows) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
}

func TestReconcilerZeroIntervalDisabled(t *testing.T) {
	env := newTestEnv(t)
	r := newTestReconciler(env)
	r.Start(context.Background())
	r.Stop()
}
