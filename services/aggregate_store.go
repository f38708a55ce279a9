// services/aggregate_store.go - Team/user aggregate store contract
package services

import (
	"context"
	"teamhub/models"
)

// AggregateStore owns the team and user documents.
//
// CreateTeam must reject a duplicate name with ErrConflict. AddMemberID and
// RemoveMemberID return ErrNotFound for an unknown team; RemoveMemberID
// returns ErrPreconditionFailed when the user is not listed.
type AggregateStore interface {
	TeamExists(ctx context.Context, name string) (bool, error)
	CreateTeam(ctx context.Context, name, category, details string, prefs models.TeamPreferences, leaderID string) (string, error)
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	ListAllTeams(ctx context.Context) ([]models.Team, error)
	FetchTeamsByName(ctx context.Context, partial string) ([]models.Team, error)
	AddMemberID(ctx context.Context, userID, teamID string) error
	RemoveMemberID(ctx context.Context, userID, teamID string) error

	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpsertUser(ctx context.Context, userID string, update models.UserProfileUpdate) error
	GetUsername(ctx context.Context, userID string) (string, error)
	SearchUsersByUsername(ctx context.Context, prefix string) ([]models.User, error)
	ListUserIDsWithTeam(ctx context.Context, teamID string) ([]string, error)
	AddTeamIDToUser(ctx context.Context, userID, teamID string) error
	RemoveTeamIDFromUser(ctx context.Context, userID, teamID string) error
	ListInterests(ctx context.Context) ([]string, error)
}

const usernameSearchLimit = 50
