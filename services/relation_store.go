// services/relation_store.go - user_teams / team_requests relation store
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"teamhub/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelationStore owns the normalised membership rows and the join-request queue.
type RelationStore interface {
	InsertMembershipRow(ctx context.Context, userID, teamID string) error
	DeleteMembershipRow(ctx context.Context, userID, teamID string) error
	ListMembershipRowsForUser(ctx context.Context, userID string) ([]string, error)
	ListMembershipRowsForTeam(ctx context.Context, teamID string) ([]models.UserTeam, error)

	InsertJoinRequest(ctx context.Context, teamID, userID string) (*models.TeamRequest, error)
	GetJoinRequest(ctx context.Context, requestID string) (*models.TeamRequest, error)
	ListPendingRequests(ctx context.Context, teamID string) ([]models.TeamRequest, error)
	CountPendingRequests(ctx context.Context, teamID string) (int64, error)
	DeleteJoinRequest(ctx context.Context, requestID string) error
	AcceptJoinRequest(ctx context.Context, requestID, teamID, userID string) error
}

type GormRelationStore struct {
	db *gorm.DB
}

func NewRelationStore(db *gorm.DB) *GormRelationStore {
	return &GormRelationStore{db: db}
}

// ================== MEMBERSHIP ROWS ==================

// InsertMembershipRow does not de-duplicate; an existing pair surfaces as ErrConflict.
func (s *GormRelationStore) InsertMembershipRow(ctx context.Context, userID, teamID string) error {
	row := &models.UserTeam{UserID: userID, TeamID: teamID}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s already linked to team %s: %w", userID, teamID, ErrConflict)
		}
		return fmt.Errorf("insert user_teams row: %w", err)
	}
	return nil
}

// DeleteMembershipRow treats a missing row as success.
func (s *GormRelationStore) DeleteMembershipRow(ctx context.Context, userID, teamID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		Delete(&models.UserTeam{}).Error
	if err != nil {
		return fmt.Errorf("delete user_teams row: %w", err)
	}
	return nil
}

func (s *GormRelationStore) ListMembershipRowsForUser(ctx context.Context, userID string) ([]string, error) {
	var teamIDs []string
	err := s.db.WithContext(ctx).Model(&models.UserTeam{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("team_id", &teamIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list user_teams for user %s: %w", userID, err)
	}
	return teamIDs, nil
}

func (s *GormRelationStore) ListMembershipRowsForTeam(ctx context.Context, teamID string) ([]models.UserTeam, error) {
	var rows []models.UserTeam
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list user_teams for team %s: %w", teamID, err)
	}
	return rows, nil
}

// ================== JOIN REQUESTS ==================

// InsertJoinRequest checks for an existing request first so the common case
// gets a clean conflict; the unique (team_id, user_id) index catches the race.
func (s *GormRelationStore) InsertJoinRequest(ctx context.Context, teamID, userID string) (*models.TeamRequest, error) {
	db := s.db.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.TeamRequest{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check existing request: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("you have already sent a request to join this team: %w", ErrConflict)
	}

	req := &models.TeamRequest{TeamID: teamID, UserID: userID}
	if err := db.Create(req).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("you have already sent a request to join this team: %w", ErrConflict)
		}
		return nil, fmt.Errorf("insert team_requests row: %w", err)
	}
	return req, nil
}

func (s *GormRelationStore) GetJoinRequest(ctx context.Context, requestID string) (*models.TeamRequest, error) {
	var req models.TeamRequest
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("join request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get join request %s: %w", requestID, err)
	}
	return &req, nil
}

func (s *GormRelationStore) ListPendingRequests(ctx context.Context, teamID string) ([]models.TeamRequest, error) {
	requests := []models.TeamRequest{}
	err := s.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("list join requests for team %s: %w", teamID, err)
	}
	return requests, nil
}

func (s *GormRelationStore) CountPendingRequests(ctx context.Context, teamID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TeamRequest{}).
		Where("team_id = ?", teamID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count join requests for team %s: %w", teamID, err)
	}
	return count, nil
}

// DeleteJoinRequest is idempotent by id.
func (s *GormRelationStore) DeleteJoinRequest(ctx context.Context, requestID string) error {
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Delete(&models.TeamRequest{}).Error
	if err != nil {
		return fmt.Errorf("delete join request %s: %w", requestID, err)
	}
	return nil
}

// AcceptJoinRequest converts a request into a membership row in one
// transaction, so the request never outlives the membership it granted.
func (s *GormRelationStore) AcceptJoinRequest(ctx context.Context, requestID, teamID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &models.UserTeam{UserID: userID, TeamID: teamID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
			return fmt.Errorf("insert user_teams row: %w", err)
		}

		res := tx.Where("request_id = ? AND team_id = ?", requestID, teamID).Delete(&models.TeamRequest{})
		if res.Error != nil {
			return fmt.Errorf("delete join request %s: %w", requestID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("join request %s: %w", requestID, ErrNotFound)
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
