package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// House statuses. The stored value is a cache; ledger.RecomputeStatus derives it.
const (
	HouseFree       = "free"
	HouseForSale    = "for_sale"
	HouseSold       = "sold"
	HouseFractional = "fractional"
)

// House rows are imported by the catalog process. Only TotalShares,
// MaxAvailTotalShares and Status are written here.
type House struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	IDFme               string    `gorm:"column:id_fme;uniqueIndex" json:"id_fme"`
	Name                string    `gorm:"column:name" json:"name"`
	TotalShares         int       `gorm:"column:total_shares;not null;default:1" json:"total_shares"`
	MaxAvailTotalShares *int      `gorm:"column:max_avail_total_shares" json:"max_avail_total_shares"`
	Status              string    `gorm:"column:status;type:varchar(20);not null;default:'free'" json:"status"`
	CreatedAt           time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (House) TableName() string {
	return "houses"
}

func (h *House) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.TotalShares < 1 {
		h.TotalShares = 1
	}
	if h.Status == "" {
		h.Status = HouseFree
	}
	return nil
}

// SplitCeiling is the largest total_shares a split may reach.
func (h *House) SplitCeiling() int {
	if h.MaxAvailTotalShares == nil {
		return h.TotalShares
	}
	return *h.MaxAvailTotalShares
}
