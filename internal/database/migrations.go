package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/roomnotify/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.StoredNotification{},
		&models.NotificationState{},
		&models.QueuedUpdate{},
		&models.TimelineEvent{},
		&models.RoomStateEvent{},
		&models.PushRuleSet{},
	)
}
