package config

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/farellandr/eventhub/internal/auth"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/store"
)

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := seedAdmin(db, cfg.Admin); err != nil {
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}
	return db, nil
}

// Migrate creates the schema, including the reminder uniqueness index that
// AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	err := db.AutoMigrate(&models.User{}, &models.Event{}, &models.TicketTier{}, &models.Registration{}, &models.Notification{})
	if err != nil {
		return err
	}
	return db.Exec(store.ReminderIndexSQL).Error
}

func seedAdmin(db *gorm.DB, admin AdminConfig) error {
	if admin.Email == "" || admin.Password == "" {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", admin.Email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := auth.HashPassword(admin.Password)
	if err != nil {
		return err
	}
	user := models.User{
		Username:            admin.Username,
		Email:               admin.Email,
		Password:            hashed,
		Name:                "Administrator",
		IsAdmin:             true,
		IsVerifiedOrganizer: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}
	logging.Info().Str("email", admin.Email).Msg("seeded admin account")
	return nil
}
