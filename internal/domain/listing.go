package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ListingActive    = "active"
	ListingCancelled = "cancelled"
	ListingClosed    = "closed"
	ListingSold      = "sold"
)

// Listing is a seller's public offer of ShareCount shares for Price.
// LeftShares is nil until the listing is partially filled.
type Listing struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID    uuid.UUID       `gorm:"column:house_id;type:uuid;not null;index" json:"house_id"`
	SellerID   uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	Currency   string          `gorm:"column:currency;type:varchar(10);not null;default:'PLN'" json:"currency"`
	ShareCount int             `gorm:"column:share_count;not null;default:1" json:"share_count"`
	LeftShares *int            `gorm:"column:left_shares" json:"left_shares"`
	Status     string          `gorm:"column:status;type:varchar(20);not null;default:'active';index" json:"status"`
	ValidFrom  time.Time       `gorm:"column:valid_from" json:"valid_from"`
	ValidTo    *time.Time      `gorm:"column:valid_to" json:"valid_to"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Listing) TableName() string {
	return "listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.ValidFrom.IsZero() {
		l.ValidFrom = time.Now().UTC()
	}
	if l.Status == "" {
		l.Status = ListingActive
	}
	return nil
}

// Remaining is the number of shares still purchasable from the listing.
func (l *Listing) Remaining() int {
	if l.LeftShares != nil {
		return *l.LeftShares
	}
	return l.ShareCount
}
