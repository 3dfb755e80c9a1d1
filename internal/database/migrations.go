package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/reviewhub/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Users must precede the tables that reference them.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Website{},
		&models.PendingVerification{},
	)
}
