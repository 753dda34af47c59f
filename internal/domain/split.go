package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProposalOpen      = "open"
	ProposalApplied   = "applied"
	ProposalCancelled = "cancelled"
)

const (
	LimitPending  = "pending"
	LimitApproved = "approved"
	LimitRejected = "rejected"
)

// SplitProposal asks co-owners to raise total_shares from CurrentTotalShares
// to RequestedTotalShares.
type SplitProposal struct {
	ID                   uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID              uuid.UUID  `gorm:"column:house_id;type:uuid;not null;index" json:"house_id"`
	InitiatorID          uuid.UUID  `gorm:"column:initiator_id;type:uuid;not null" json:"initiator_id"`
	CurrentTotalShares   int        `gorm:"column:current_total_shares;not null" json:"current_total_shares"`
	RequestedTotalShares int        `gorm:"column:requested_total_shares;not null" json:"requested_total_shares"`
	Status               string     `gorm:"column:status;type:varchar(20);not null;default:'open'" json:"status"`
	AppliedAt            *time.Time `gorm:"column:applied_at" json:"applied_at"`
	CreatedAt            time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SplitProposal) TableName() string {
	return "share_split_proposals"
}

func (p *SplitProposal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = ProposalOpen
	}
	return nil
}

type SplitVote struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProposalID uuid.UUID `gorm:"column:proposal_id;type:uuid;not null;uniqueIndex:ux_split_vote" json:"proposal_id"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_split_vote" json:"user_id"`
	Vote       bool      `gorm:"column:vote;not null" json:"vote"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SplitVote) TableName() string {
	return "share_split_votes"
}

func (v *SplitVote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// SplitLimitRequest asks governance to raise a house's split ceiling.
type SplitLimitRequest struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	HouseID      uuid.UUID  `gorm:"column:house_id;type:uuid;not null;index" json:"house_id"`
	RequesterID  uuid.UUID  `gorm:"column:requester_id;type:uuid;not null" json:"requester_id"`
	RequestedMax int        `gorm:"column:requested_max;not null" json:"requested_max"`
	Status       string     `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	DecidedAt    *time.Time `gorm:"column:decided_at" json:"decided_at"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SplitLimitRequest) TableName() string {
	return "split_limit_requests"
}

func (r *SplitLimitRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = LimitPending
	}
	return nil
}
