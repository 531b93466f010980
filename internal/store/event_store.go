package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/farellandr/eventhub/internal/models"
)

type eventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) EventStore {
	return &eventStore{db: db}
}

func (s *eventStore) Create(ctx context.Context, event *models.Event) error {
	return translate(s.db.WithContext(ctx).Omit("Organizer").Create(event).Error)
}

func (s *eventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).
		Preload("TicketTiers", func(db *gorm.DB) *gorm.DB { return db.Order("price ASC") }).
		Preload("Organizer").
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (s *eventStore) List(ctx context.Context, filter EventFilter) ([]models.Event, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Event{})
	if filter.Approval != nil {
		query = query.Where("approval_state = ?", *filter.Approval)
	}
	if filter.OrganizerID != nil {
		query = query.Where("organizer_id = ?", *filter.OrganizerID)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Search != "" {
		like := likePattern(filter.Search)
		query = query.Where(
			"(LOWER(title) LIKE ? OR LOWER(short_description) LIKE ? OR LOWER(description) LIKE ? OR LOWER(address) LIKE ? OR LOWER(category) LIKE ?)",
			like, like, like, like, like,
		)
	}
	if filter.From != nil {
		query = query.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("start_time < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.Event
	offset, limit := filter.Window()
	err := paginate(query, offset, limit).
		Preload("TicketTiers").
		Order("start_time ASC").
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (s *eventStore) Save(ctx context.Context, event *models.Event, tiers []models.TicketTier) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(event).Error; err != nil {
			return err
		}
		if tiers == nil {
			return nil
		}

		if err := tx.Where("event_id = ?", event.ID).Delete(&models.TicketTier{}).Error; err != nil {
			return err
		}
		for i := range tiers {
			tiers[i].ID = uuid.Nil
			tiers[i].EventID = event.ID
		}
		if len(tiers) > 0 {
			if err := tx.Create(&tiers).Error; err != nil {
				return err
			}
		}
		event.TicketTiers = tiers
		return nil
	})
	return translate(err)
}

func (s *eventStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ? AND status = ?", id, models.NotificationPending).
			Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.TicketTier{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&models.Event{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate(err)
}
