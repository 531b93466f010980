package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

type PricingMode string

const (
	PricingFree PricingMode = "free"
	PricingPaid PricingMode = "paid"
)

type Category string

const (
	CategoryMusic     Category = "music"
	CategorySports    Category = "sports"
	CategoryArts      Category = "arts"
	CategoryFood      Category = "food"
	CategoryTech      Category = "tech"
	CategoryCommunity Category = "community"
	CategoryEducation Category = "education"
	CategoryHealth    Category = "health"
	CategoryOther     Category = "other"
)

var Categories = []Category{
	CategoryMusic, CategorySports, CategoryArts, CategoryFood, CategoryTech,
	CategoryCommunity, CategoryEducation, CategoryHealth, CategoryOther,
}

func ValidCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

type Event struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Title                string         `gorm:"not null" json:"title"`
	ShortDescription     string         `json:"short_description"`
	Description          string         `gorm:"not null" json:"description"`
	ImagePath            string         `json:"image_path,omitempty"`
	StartTime            time.Time      `gorm:"not null;index" json:"start_time"`
	EndTime              *time.Time     `json:"end_time,omitempty"`
	Address              string         `gorm:"not null" json:"address"`
	Latitude             *float64       `json:"latitude,omitempty"`
	Longitude            *float64       `json:"longitude,omitempty"`
	Category             Category       `gorm:"type:varchar(32);not null;index" json:"category"`
	PricingMode          PricingMode    `gorm:"type:varchar(8);not null" json:"pricing_mode"`
	RegistrationDeadline *time.Time     `json:"registration_deadline,omitempty"`
	ApprovalState        ApprovalState  `gorm:"type:varchar(16);not null;default:'pending';index" json:"approval_state"`
	IsApproved           bool           `gorm:"-" json:"is_approved"`
	IsFlagged            bool           `gorm:"not null;default:false" json:"is_flagged"`
	FlagReason           string         `json:"flag_reason,omitempty"`
	OrganizerID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"organizer_id"`
	Organizer            *User          `gorm:"foreignKey:OrganizerID" json:"organizer,omitempty"`
	TicketTiers          []TicketTier   `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"ticket_tiers"`
	Registrations        []Registration `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

func (event *Event) AfterFind(tx *gorm.DB) (err error) {
	event.SyncApproval()
	return
}

// SyncApproval refreshes the derived IsApproved flag from ApprovalState.
func (event *Event) SyncApproval() {
	event.IsApproved = event.ApprovalState == ApprovalApproved
}

func (event *Event) SetApproval(state ApprovalState) {
	event.ApprovalState = state
	event.SyncApproval()
}

func (event *Event) IsFree() bool {
	return event.PricingMode == PricingFree
}

// Tier returns the ticket tier with the given id if it belongs to the event.
func (event *Event) Tier(id uuid.UUID) (*TicketTier, bool) {
	for i := range event.TicketTiers {
		if event.TicketTiers[i].ID == id {
			return &event.TicketTiers[i], true
		}
	}
	return nil, false
}
