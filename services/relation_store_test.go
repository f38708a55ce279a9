package services

import (
	"context"
	"testing"
	"teamhub/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func rowUserIDs(rows []models.UserTeam) []string {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.UserID
	}
	return ids
}

func TestRelationStoreMembershipRows(t *testing.T) {
	ctx := context.Background()
	s := NewRelationStore(newTestDB(t))

	require.NoError(t, s.InsertMembershipRow(ctx, "u1", "t1"))
	require.NoError(t, s.InsertMembershipRow(ctx, "u1", "t2"))
	require.NoError(t, s.InsertMembershipRow(ctx, "u2", "t1"))

	err := s.InsertMembershipRow(ctx, "u1", "t1")
	assert.ErrorIs(t, err, ErrConflict)

	teams, err := s.ListMembershipRowsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, teams)

	rows, err := s.ListMembershipRowsForTeam(ctx, "t1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, rowUserIDs(rows))
	for _, row := range rows {
		assert.False(t, row.CreatedAt.IsZero())
	}

	require.NoError(t, s.DeleteMembershipRow(ctx, "u1", "t1"))
	// Deleting an absent row is not an error.
	require.NoError(t, s.DeleteMembershipRow(ctx, "u1", "t1"))

	teams, err = s.ListMembershipRowsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, teams)
}

func TestRelationStoreJoinRequests(t *testing.T) {
	ctx := context.Background()
	s := NewRelationStore(newTestDB(t))

	req, err := s.InsertJoinRequest(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.Len(t, req.RequestID, 36)
	assert.Equal(t, "t1", req.TeamID)
	assert.Equal(t, "u1", req.UserID)

	_, err = s.InsertJoinRequest(ctx, "t1", "u1")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.InsertJoinRequest(ctx, "t1", "u2")
	require.NoError(t, err)
	_, err = s.InsertJoinRequest(ctx, "t2", "u1")
	require.NoError(t, err)

	count, err := s.CountPendingRequests(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	pending, err := s.ListPendingRequests(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	got, err := s.GetJoinRequest(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.DeleteJoinRequest(ctx, req.RequestID))
	require.NoError(t, s.DeleteJoinRequest(ctx, req.RequestID))

	_, err = s.GetJoinRequest(ctx, req.RequestID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err = s.CountPendingRequests(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRelationStoreAcceptJoinRequest(t *testing.T) {
	ctx := context.Background()
	s := NewRelationStore(newTestDB(t))

	req, err := s.InsertJoinRequest(ctx, "t1", "u1")
	require.NoError(t, err)

	require.NoError(t, s.AcceptJoinRequest(ctx, req.RequestID, "t1", "u1"))

	teams, err := s.ListMembershipRowsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, teams)

	count, err := s.CountPendingRequests(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Accepting again finds no request; the membership insert is rolled back
	// with it, leaving exactly one row.
	err = s.AcceptJoinRequest(ctx, req.RequestID, "t1", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := s.ListMembershipRowsForTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, rowUserIDs(rows))
}

func TestRelationStoreAcceptRollsBackOnWrongTeam(t *testing.T) {
	ctx := context.Background()
	s := NewRelationStore(newTestDB(t))

	req, err := s.InsertJoinRequest(ctx, "t1", "u1")
	require.NoError(t, err)

	err = s.AcceptJoinRequest(ctx, req.RequestID, "t2", "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	teams, err := s.ListMembershipRowsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, teams)

	_, err = s.GetJoinRequest(ctx, req.RequestID)
	assert.NoError(t, err)
}

func TestRelationStoreJoinRequestUniqueIndexCatchesRace(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := NewRelationStore(db)

	// A competing request lands between the existence check and the insert.
	raced := false
	err := db.Callback().Query().After("gorm:query").Register("test:competing_request", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "team_requests" {
			return
		}
		raced = true
		require.NoError(t, db.Create(&models.TeamRequest{TeamID: "t1", UserID: "u1"}).Error)
	})
	require.NoError(t, err)

	_, err = s.InsertJoinRequest(ctx, "t1", "u1")
	require.True(t, raced)
	assert.ErrorIs(t, err, ErrConflict)

	count, err := s.CountPendingRequests(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRelationStoreDuplicateRequestRejectedByIndex(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Create(&models.TeamRequest{TeamID: "t1", UserID: "u1"}).Error)
	err := db.Create(&models.TeamRequest{TeamID: "t1", UserID: "u1"}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	var count int64
	require.NoError(t, db.Model(&models.TeamRequest{}).Where("team_id = ? AND user_id = ?", "t1", "u1").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
