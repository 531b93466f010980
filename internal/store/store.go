// Package store holds the persistence contracts used by the service layer
// and their gorm/postgres implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserFilter struct {
	Search string
	Banned *bool
	Page   int
	Limit  int
}

type EventFilter struct {
	Approval    *models.ApprovalState
	OrganizerID *uuid.UUID
	Search      string
	Category    string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

// Window returns the offset and limit to apply, or a zero limit when the
// filter is unpaged.
func (f EventFilter) Window() (offset, limit int) {
	return window(f.Page, f.Limit)
}

func (f UserFilter) Window() (offset, limit int) {
	return window(f.Page, f.Limit)
}

func window(page, limit int) (int, int) {
	if limit <= 0 {
		return 0, 0
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit, limit
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByLogin matches either the email or the username.
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	List(ctx context.Context, filter UserFilter) ([]models.User, int64, error)
	Save(ctx context.Context, user *models.User) error
}

type EventStore interface {
	// Create inserts the event together with its ticket tiers.
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, filter EventFilter) ([]models.Event, int64, error)
	// Save writes the event row. When tiers is non-nil the event's ticket
	// tiers are replaced by it.
	Save(ctx context.Context, event *models.Event, tiers []models.TicketTier) error
	// Delete removes the event, its ticket tiers, its registrations and any
	// notification still pending for it.
	Delete(ctx context.Context, id uuid.UUID) error
}

type RegistrationStore interface {
	// Create returns ErrDuplicate when the (event, user) pair already exists.
	Create(ctx context.Context, registration *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// MarkCheckedIn sets the check-in time once; it reports false when the
	// registration was already checked in.
	MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type NotificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	// CreateReminderOnce inserts a reminder unless one already exists for
	// the same (user, event); it reports whether the row was inserted.
	CreateReminderOnce(ctx context.Context, notification *models.Notification) (bool, error)
	HasReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error)
	GetReminder(ctx context.Context, userID, eventID uuid.UUID) (*models.Notification, error)
	// DeletePendingReminder removes an unsent reminder for the pair, if any.
	DeletePendingReminder(ctx context.Context, userID, eventID uuid.UUID) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	MarkResult(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
}
