package negotiation

import (
	"context"

	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/infrastructure/database"
	"sharehouse-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
)

// Thread is a conversation with its offer history and messages, oldest first.
type Thread struct {
	Conversation domain.Conversation          `json:"conversation"`
	Role         string                       `json:"role"`
	Offers       []domain.Offer               `json:"offers"`
	Messages     []domain.ConversationMessage `json:"messages"`
}

// Summary is one row of the caller's inbox.
type Summary struct {
	domain.Conversation
	Role        string        `json:"role"`
	LatestOffer *domain.Offer `json:"latest_offer,omitempty"`
}

func roleOf(conv *domain.Conversation, userID uuid.UUID) string {
	if conv.IsSeller(userID) {
		return "seller"
	}
	return "buyer"
}

// Get returns the thread for a participant.
func (s *Service) Get(ctx context.Context, convID, userID uuid.UUID) (*Thread, error) {
	db := s.DB.WithContext(ctx)
	var t Thread
	if err := db.Where("id = ?", convID).Take(&t.Conversation).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, err
	}
	if !t.Conversation.IsParticipant(userID) {
		return nil, apperrors.ErrNotParticipant
	}
	t.Role = roleOf(&t.Conversation, userID)
	if err := db.Where("conversation_id = ?", convID).Order("created_at ASC").Find(&t.Offers).Error; err != nil {
		return nil, err
	}
	if err := db.Where("conversation_id = ?", convID).Order("created_at ASC").Find(&t.Messages).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListMine returns the caller's conversations, most recently touched first.
// Stopped and sold ones are included only when archived is set.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, archived bool) ([]Summary, error) {
	db := s.DB.WithContext(ctx)
	q := db.Where("(buyer_id = ? OR seller_id = ?)", userID, userID)
	if archived {
		q = q.Where("status IN ?", []string{domain.ConversationStopped, domain.ConversationSold})
	} else {
		q = q.Where("status IN ?", []string{domain.ConversationActive, domain.ConversationAgreed})
	}
	var convs []domain.Conversation
	if err := q.Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(convs))
	for i := range convs {
		row := Summary{Conversation: convs[i], Role: roleOf(&convs[i], userID)}
		var o domain.Offer
		err := db.Where("conversation_id = ?", convs[i].ID).Order("created_at DESC").Take(&o).Error
		switch {
		case err == nil:
			row.LatestOffer = &o
		case !database.IsNotFound(err):
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
