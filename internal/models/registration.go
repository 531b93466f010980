package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Registration snapshots the contact fields and the chosen tier's name and
// price so later tier edits do not rewrite what the attendee signed up for.
type Registration struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	EventID             uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_registrations_event_user" json:"event_id"`
	UserID              uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_registrations_event_user;index" json:"user_id"`
	Name                string      `gorm:"not null" json:"name"`
	Email               string      `gorm:"not null" json:"email"`
	Phone               string      `json:"phone,omitempty"`
	AdditionalAttendees int         `gorm:"not null;default:0" json:"additional_attendees"`
	TicketTierID        *uuid.UUID  `gorm:"type:uuid" json:"ticket_tier_id,omitempty"`
	TicketTier          *TicketTier `gorm:"foreignKey:TicketTierID;constraint:OnDelete:SET NULL" json:"-"`
	TicketTierName      string      `json:"ticket_tier_name,omitempty"`
	TicketPrice         int64       `gorm:"not null;default:0" json:"ticket_price"`
	CheckedInAt         *time.Time  `json:"checked_in_at,omitempty"`
	Event               *Event      `gorm:"foreignKey:EventID" json:"event,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

func (registration *Registration) BeforeCreate(tx *gorm.DB) (err error) {
	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}
	return
}

// PartySize counts the registrant plus everyone they bring along.
func (registration *Registration) PartySize() int {
	return 1 + registration.AdditionalAttendees
}
