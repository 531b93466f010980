package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Username            string    `gorm:"unique;not null" json:"username"`
	Email               string    `gorm:"unique;not null" json:"email"`
	Password            string    `gorm:"not null" json:"-"`
	Name                string    `json:"name"`
	PhoneNumber         string    `json:"phone_number"`
	IsAdmin             bool      `gorm:"not null;default:false" json:"is_admin"`
	IsVerifiedOrganizer bool      `gorm:"not null;default:false" json:"is_verified_organizer"`
	IsBanned            bool      `gorm:"not null;default:false" json:"is_banned"`
	BanReason           string    `json:"ban_reason,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return
}

// DisplayName falls back to the username when no name was given.
func (user *User) DisplayName() string {
	if user.Name != "" {
		return user.Name
	}
	return user.Username
}
