// models/user_team.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserTeam is one row of the normalised user <-> team relation.
type UserTeam struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"column:user_id;not null;size:128;uniqueIndex:idx_user_teams_pair"`
	TeamID    string    `json:"team_id" gorm:"column:team_id;not null;size:64;uniqueIndex:idx_user_teams_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserTeam) TableName() string {
	return "user_teams"
}

// TeamRequest is a pending join request. Existence of the row means pending.
type TeamRequest struct {
	RequestID string    `json:"request_id" gorm:"column:request_id;primaryKey;size:36"`
	TeamID    string    `json:"team_id" gorm:"column:team_id;not null;size:64;uniqueIndex:idx_team_requests_pair"`
	UserID    string    `json:"user_id" gorm:"column:user_id;not null;size:128;uniqueIndex:idx_team_requests_pair"`
	CreatedAt time.Time `json:"created_at"`
}

func (TeamRequest) TableName() string {
	return "team_requests"
}

func (r *TeamRequest) BeforeCreate(tx *gorm.DB) error {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	return nil
}

// PendingRequestView is a join request with the requester's username resolved.
type PendingRequestView struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
