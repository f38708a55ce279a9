// database/migrate.go - Database Migration Runner
package database

import (
	"fmt"
	"teamhub/logger"
	"teamhub/models"

	"gorm.io/gorm"
)

// RunMigrations creates the membership relation tables and their indexes.
func RunMigrations(db *gorm.DB, log *logger.Logger) error {
	log.Info("running database migrations")

	if err := db.AutoMigrate(
		&models.UserTeam{},
		&models.TeamRequest{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// The unique pair indexes lead with user_id and team_id respectively;
	// these cover the opposite lookups.
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_user_teams_team ON user_teams(team_id)",
		"CREATE INDEX IF NOT EXISTS idx_team_requests_user ON team_requests(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_team_requests_created ON team_requests(team_id, created_at)",
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	log.Info("migrations completed")
	return nil
}
