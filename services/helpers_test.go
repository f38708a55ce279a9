package services

import (
	"context"
	"testing"
	"teamhub/database"
	"teamhub/events"
	"teamhub/logger"
	"teamhub/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the relation schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(db, logger.Nop()))
	return db
}

type testEnv struct {
	ctx       context.Context
	teams     *MemoryStore
	relations *GormRelationStore
	tasks     *MemoryTaskQueue
	events    *events.Recorder
	svc       *MembershipService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

// newTestEnvWith lets a test wrap the aggregate store, e.g. to inject failures.
func newTestEnvWith(t *testing.T, wrap func(AggregateStore) AggregateStore) *testEnv {
	t.Helper()

	env := &testEnv{
		ctx:       context.Background(),
		teams:     NewMemoryStore("Hiking", "Chess"),
		relations: NewRelationStore(newTestDB(t)),
		tasks:     NewMemoryTaskQueue(),
		events:    &events.Recorder{},
	}
	var store AggregateStore = env.teams
	if wrap != nil {
		store = wrap(store)
	}
	env.svc = NewMembershipService(store, env.relations, env.tasks, env.events, logger.Nop())
	return env
}

func (e *testEnv) createTeam(t *testing.T, leaderID, name string, privacy models.Privacy) string {
	t.Helper()
	teamID, err := e.svc.CreateTeam(e.ctx, leaderID, CreateTeamInput{
		Name:     name,
		Category: "Outdoors",
		Details:  "Weekend trips",
		Privacy:  privacy,
	})
	require.NoError(t, err)
	return teamID
}

func (e *testEnv) setUsername(t *testing.T, userID, username string) {
	t.Helper()
	require.NoError(t, e.teams.UpsertUser(e.ctx, userID, models.UserProfileUpdate{Username: &username}))
}

// requireMember asserts both stores agree that userID is in teamID.
func (e *testEnv) requireMember(t *testing.T, userID, teamID string) {
	t.Helper()

	rows, err := e.relations.ListMembershipRowsForUser(e.ctx, userID)
	require.NoError(t, err)
	require.Contains(t, rows, teamID, "relation row")

	team, err := e.teams.GetTeam(e.ctx, teamID)
	require.NoError(t, err)
	require.Contains(t, team.Members, userID, "team members")

	user, err := e.teams.GetUser(e.ctx, userID)
	require.NoError(t, err)
	require.Contains(t, user.Teams, teamID, "user teams")
}

// requireNotMember asserts neither store records userID in teamID.
func (e *testEnv) requireNotMember(t *testing.T, userID, teamID string) {
	t.Helper()

	rows, err := e.relations.ListMembershipRowsForUser(e.ctx, userID)
	require.NoError(t, err)
	require.NotContains(t, rows, teamID, "relation row")

	team, err := e.teams.GetTeam(e.ctx, teamID)
	require.NoError(t, err)
	require.NotContains(t, team.Members, userID, "team members")

	user, err := e.teams.GetUser(e.ctx, userID)
	if err == nil {
		require.NotContains(t, user.Teams, teamID, "user teams")
	}
}

// faultyStore fails selected aggregate writes.
type faultyStore struct {
	AggregateStore
	failAddMember  error
	failRemoveUser error
	// beforeAddMember runs ahead of the team document write.
	beforeAddMember func()
}

func (f *faultyStore) AddMemberID(ctx context.Context, userID, teamID string) error {
	if f.beforeAddMember != nil {
		f.beforeAddMember()
	}
	if f.failAddMember != nil {
		return f.failAddMember
	}
	return f.AggregateStore.AddMemberID(ctx, userID, teamID)
}

func (f *faultyStore) RemoveTeamIDFromUser(ctx context.Context, userID, teamID string) error {
	if f.failRemoveUser != nil {
		return f.failRemoveUser
	}
	return f.AggregateStore.RemoveTeamIDFromUser(ctx, userID, teamID)
}
