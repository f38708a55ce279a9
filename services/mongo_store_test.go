package services

import (
	"context"
	"os"
	"testing"
	"teamhub/models"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newTestMongoStore uses a throwaway database on MONGO_URI.
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("teamhub_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := NewMongoStore(db)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestMongoStoreTeams(t *testing.T) {
	s := newTestMongoStore(t)
	ctx := context.Background()

	id, err := s.CreateTeam(ctx, "Hikers", "Outdoors", "Trails", models.TeamPreferences{Privacy: models.PrivacyOpen}, "leader")
	require.NoError(t, err)

	exists, err := s.TeamExists(ctx, "Hikers")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.CreateTeam(ctx, "Hikers", "Outdoors", "Again", models.TeamPreferences{}, "other")
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, s.AddMemberID(ctx, "u1", id))
	require.NoError(t, s.AddMemberID(ctx, "u1", id))
	team, err := s.GetTeam(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, team.Members)
	assert.Equal(t, "leader", team.Preferences.Leader)

	require.NoError(t, s.RemoveMemberID(ctx, "u1", id))
	assert.ErrorIs(t, s.RemoveMemberID(ctx, "u1", id), ErrPreconditionFailed)
	assert.ErrorIs(t, s.AddMemberID(ctx, "u1", "missing"), ErrNotFound)

	teams, err := s.FetchTeamsByName(ctx, "hik")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, id, teams[0].ID)
}

func TestMongoStoreUsers(t *testing.T) {
	s := newTestMongoStore(t)
	ctx := context.Background()

	alice := "Alice"
	require.NoError(t, s.UpsertUser(ctx, "u1", models.UserProfileUpdate{Username: &alice}))
	require.NoError(t, s.AddTeamIDToUser(ctx, "u1", "t1"))
	require.NoError(t, s.AddTeamIDToUser(ctx, "u2", "t1"))

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)
	assert.Equal(t, []string{"t1"}, user.Teams)

	ids, err := s.ListUserIDsWithTeam(ctx, "t1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)

	users, err := s.SearchUsersByUsername(ctx, "al")
	require.NoError(t, err)
	require.Len(t, users, 1)

	name, err := s.GetUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, s.RemoveTeamIDFromUser(ctx, "u1", "t1"))
	require.NoError(t, s.RemoveTeamIDFromUser(ctx, "nobody", "t1"))
	user, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.Teams)
}
