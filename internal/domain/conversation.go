package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ConversationActive  = "active"
	ConversationAgreed  = "agreed"
	ConversationSold    = "sold"
	ConversationStopped = "stopped"
)

const (
	OfferTypeOffer   = "offer"
	OfferTypeCounter = "counter"
)

// Conversation is the private buyer/seller negotiation about one house.
type Conversation struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID   uuid.UUID  `gorm:"column:house_id;type:uuid;not null;uniqueIndex:ux_conversation_parties" json:"house_id"`
	BuyerID   uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_conversation_parties" json:"buyer_id"`
	SellerID  *uuid.UUID `gorm:"column:seller_id;type:uuid;uniqueIndex:ux_conversation_parties" json:"seller_id"`
	Status    string     `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	return nil
}

// IsParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || (c.SellerID != nil && *c.SellerID == userID)
}

// IsSeller reports whether userID is the resolved seller.
func (c *Conversation) IsSeller(userID uuid.UUID) bool {
	return c.SellerID != nil && *c.SellerID == userID
}

// Offer rows are append-only; only Accepted changes after insert.
type Offer struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID       `gorm:"column:conversation_id;type:uuid;not null;index" json:"conversation_id"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	Shares         *int            `gorm:"column:shares" json:"shares"`
	Type           string          `gorm:"column:type;type:varchar(10);not null;default:'offer'" json:"type"`
	Accepted       bool            `gorm:"column:accepted;not null;default:false" json:"accepted"`
	CreatedAt      time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (Offer) TableName() string {
	return "offers"
}

func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Type == "" {
		o.Type = OfferTypeOffer
	}
	return nil
}

// ConversationMessage is a line in the negotiation thread. System lines have
// no sender.
type ConversationMessage struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID  `gorm:"column:conversation_id;type:uuid;not null;index" json:"conversation_id"`
	SenderID       *uuid.UUID `gorm:"column:sender_id;type:uuid" json:"sender_id"`
	Body           string     `gorm:"column:body;type:text;not null" json:"body"`
	System         bool       `gorm:"column:system;not null;default:false" json:"system"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

func (m *ConversationMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
