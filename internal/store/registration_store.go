package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farellandr/eventhub/internal/models"
)

type registrationStore struct {
	db *gorm.DB
}

func NewRegistrationStore(db *gorm.DB) RegistrationStore {
	return &registrationStore{db: db}
}

func (s *registrationStore) Create(ctx context.Context, registration *models.Registration) error {
	return translate(s.db.WithContext(ctx).Omit("Event", "TicketTier").Create(registration).Error)
}

func (s *registrationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var registration models.Registration
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&registration).Error; err != nil {
		return nil, translate(err)
	}
	return &registration, nil
}

func (s *registrationStore) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	var registration models.Registration
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&registration).Error
	if err != nil {
		return nil, translate(err)
	}
	return &registration, nil
}

func (s *registrationStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	var registrations []models.Registration
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&registrations).Error
	return registrations, err
}

func (s *registrationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	var registrations []models.Registration
	err := s.db.WithContext(ctx).
		Preload("Event").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&registrations).Error
	return registrations, err
}

func (s *registrationStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Registration{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *registrationStore) MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND checked_in_at IS NULL", id).
		Update("checked_in_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
