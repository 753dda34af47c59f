package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
	TxRefunded  = "refunded"
)

const TradeSettled = "settled"

// Trade is the immutable record of a synchronous settlement.
type Trade struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ListingID uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	HouseID   uuid.UUID       `gorm:"column:house_id;type:uuid;not null;index" json:"house_id"`
	BuyerID   uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	SellerID  uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Shares    int             `gorm:"column:shares;not null" json:"shares"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null" json:"price"`
	Currency  string          `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	Status    string          `gorm:"column:status;type:varchar(20);not null;default:'settled'" json:"status"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TradeSettled
	}
	return nil
}

// Transaction tracks a card payment for a listing. StripeSessionID is the
// idempotency key for webhook delivery.
type Transaction struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	StripeSessionID     string          `gorm:"column:stripe_session_id;uniqueIndex;not null" json:"stripe_session_id"`
	StripePaymentIntent *string         `gorm:"column:stripe_payment_intent;index" json:"stripe_payment_intent"`
	ListingID           *uuid.UUID      `gorm:"column:listing_id;type:uuid" json:"listing_id"`
	HouseID             *uuid.UUID      `gorm:"column:house_id;type:uuid" json:"house_id"`
	BuyerID             *uuid.UUID      `gorm:"column:buyer_id;type:uuid;index" json:"buyer_id"`
	SellerID            *uuid.UUID      `gorm:"column:seller_id;type:uuid;index" json:"seller_id"`
	Shares              int             `gorm:"column:shares;not null;default:1" json:"shares"`
	Amount              decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	Currency            string          `gorm:"column:currency;type:varchar(10);not null;default:'PLN'" json:"currency"`
	PlatformFee         decimal.Decimal `gorm:"column:platform_fee;type:decimal(12,2);not null;default:0" json:"platform_fee"`
	Status              string          `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	RawEvent            datatypes.JSON  `gorm:"column:raw_event" json:"-"`
	CreatedAt           time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at" json:"updated_at"`
	CompletedAt         *time.Time      `gorm:"column:completed_at" json:"completed_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TxPending
	}
	return nil
}

// CanMoveTo reports whether the status change keeps the order
// pending -> completed|failed|refunded, completed -> refunded. A failed
// attempt can still be followed by a successful one in the same checkout
// session, so failed -> completed|refunded is allowed too.
func (t *Transaction) CanMoveTo(next string) bool {
	switch t.Status {
	case TxPending:
		return next == TxCompleted || next == TxFailed || next == TxRefunded
	case TxFailed:
		return next == TxCompleted || next == TxRefunded
	case TxCompleted:
		return next == TxRefunded
	default:
		return false
	}
}

// Models lists every table for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&User{}, &House{}, &OwnershipRecord{}, &Listing{},
		&Conversation{}, &Offer{}, &ConversationMessage{},
		&SplitProposal{}, &SplitVote{}, &SplitLimitRequest{},
		&Trade{}, &Transaction{},
	}
}
