package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the subset of the account row this service reads. Registration and
// profile management live elsewhere.
type User struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Username        string    `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email           string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	StripeAccountID *string   `gorm:"column:stripe_account_id" json:"stripe_account_id"`
	IsBot           bool      `gorm:"column:is_bot;not null;default:false" json:"is_bot"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
