package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationReminder     NotificationType = "reminder"
	NotificationUpdate       NotificationType = "update"
	NotificationCancellation NotificationType = "cancellation"
)

type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelSMS      NotificationChannel = "sms"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

func ValidChannel(s string) bool {
	switch NotificationChannel(s) {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification records one delivery attempt. EventID has no foreign key so
// cancellation records outlive the event they describe. A partial unique
// index on (user_id, event_id) WHERE type = 'reminder' is created at
// migration time.
type Notification struct {
	ID          uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	UserID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"user_id"`
	EventID     *uuid.UUID          `gorm:"type:uuid;index" json:"event_id,omitempty"`
	EventTitle  string              `json:"event_title,omitempty"`
	Type        NotificationType    `gorm:"type:varchar(16);not null;index" json:"type"`
	Template    string              `gorm:"type:varchar(48);not null" json:"template"`
	Channel     NotificationChannel `gorm:"type:varchar(16);not null" json:"channel"`
	Recipient   string              `gorm:"not null" json:"recipient"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Status      NotificationStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	Success     bool                `gorm:"not null;default:false" json:"success"`
	Error       string              `json:"error,omitempty"`
	ScheduledAt *time.Time          `gorm:"index" json:"scheduled_at,omitempty"`
	SentAt      *time.Time          `json:"sent_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (notification *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return
}
