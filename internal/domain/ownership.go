package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OwnershipRecord holds a user's share count in a house. Rows never persist
// with zero shares.
type OwnershipRecord struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID   uuid.UUID       `gorm:"column:house_id;type:uuid;not null;uniqueIndex:ux_ownership_house_user" json:"house_id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_ownership_house_user" json:"user_id"`
	Shares    int             `gorm:"column:shares;not null" json:"shares"`
	BoughtFor decimal.Decimal `gorm:"column:bought_for;type:decimal(12,2);not null;default:0" json:"bought_for"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (OwnershipRecord) TableName() string {
	return "house_ownerships"
}

func (o *OwnershipRecord) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
