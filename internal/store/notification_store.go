package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/eventhub/internal/models"
)

// ReminderIndexSQL backs CreateReminderOnce; it is applied after AutoMigrate.
const ReminderIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_reminder_once
	ON notifications (user_id, event_id) WHERE type = 'reminder'`

type notificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) NotificationStore {
	return &notificationStore{db: db}
}

func (s *notificationStore) Create(ctx context.Context, notification *models.Notification) error {
	return translate(s.db.WithContext(ctx).Create(notification).Error)
}

func (s *notificationStore) CreateReminderOnce(ctx context.Context, notification *models.Notification) (bool, error) {
	notification.Type = models.NotificationReminder
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notification)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *notificationStore) HasReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND event_id = ? AND type = ?", userID, eventID, models.NotificationReminder).
		Count(&count).Error
	return count > 0, err
}

func (s *notificationStore) GetReminder(ctx context.Context, userID, eventID uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND type = ?", userID, eventID, models.NotificationReminder).
		First(&notification).Error
	if err != nil {
		return nil, translate(err)
	}
	return &notification, nil
}

func (s *notificationStore) DeletePendingReminder(ctx context.Context, userID, eventID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND type = ? AND status = ?",
			userID, eventID, models.NotificationReminder, models.NotificationPending).
		Delete(&models.Notification{}).Error
}

func (s *notificationStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.NotificationPending, now).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}

func (s *notificationStore) MarkResult(ctx context.Context, notification *models.Notification) error {
	return s.db.WithContext(ctx).
		Model(notification).
		Select("status", "success", "error", "sent_at", "channel", "recipient", "subject", "body").
		Updates(notification).Error
}

func (s *notificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}
