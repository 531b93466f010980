package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketTier is a named price point of a paid event. Price is in minor
// currency units (cents).
type TicketTier struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Price       int64     `gorm:"not null" json:"price"`
	Description string    `json:"description,omitempty"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;index" json:"event_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ticket *TicketTier) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
