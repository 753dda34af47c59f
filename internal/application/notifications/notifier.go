// Package notifications tells the outside world about settled trades once the
// settling transaction has committed.
package notifications

import (
	"context"
	"sync"
	"time"

	"sharehouse-backend/internal/infrastructure/events"
	"sharehouse-backend/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	EventTradeSettled   = "trade.settled"
	tradeSettledVersion = 1
)

// TradeSettled is the payload of a trade.settled event.
type TradeSettled struct {
	TradeID   uuid.UUID       `json:"trade_id"`
	ListingID uuid.UUID       `json:"listing_id"`
	HouseID   uuid.UUID       `json:"house_id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Shares    int             `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Source    string          `json:"source"`
	SettledAt time.Time       `json:"settled_at"`
}

// Notifier is called after commit. Implementations must not block the caller.
type Notifier interface {
	OnTradeSettled(ctx context.Context, ev TradeSettled)
}

type Noop struct{}

func (Noop) OnTradeSettled(context.Context, TradeSettled) {}

// KafkaNotifier publishes events in the background, retrying with
// exponential backoff.
type KafkaNotifier struct {
	Publisher events.Publisher
	Topic     string
	Attempts  int
	Backoff   time.Duration
	Metrics   *metrics.Metrics

	wg sync.WaitGroup
}

func NewKafkaNotifier(pub events.Publisher, topic string, m *metrics.Metrics) *KafkaNotifier {
	return &KafkaNotifier{Publisher: pub, Topic: topic, Attempts: 3, Backoff: 200 * time.Millisecond, Metrics: m}
}

func (n *KafkaNotifier) OnTradeSettled(ctx context.Context, ev TradeSettled) {
	env, err := events.NewEnvelope(events.DeterministicEventID(EventTradeSettled, ev.TradeID.String()), EventTradeSettled, tradeSettledVersion, ev)
	if err != nil {
		log.Error().Err(err).Str("trade_id", ev.TradeID.String()).Msg("build trade.settled envelope")
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ctx, ev.HouseID.String(), env)
	}()
}

func (n *KafkaNotifier) deliver(ctx context.Context, key string, env events.Envelope) {
	attempts := n.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := n.Backoff
	for i := 1; i <= attempts; i++ {
		_, _, err := n.Publisher.PublishJSON(ctx, n.Topic, key, env)
		if err == nil {
			n.Metrics.IncNotification("delivered")
			return
		}
		log.Warn().Err(err).Int("attempt", i).Str("event_id", env.EventID).Msg("trade.settled publish failed")
		if i < attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	n.Metrics.IncNotification("dropped")
	log.Error().Str("event_id", env.EventID).Msg("trade.settled dropped after retries")
}

// Wait blocks until every in-flight delivery has finished.
func (n *KafkaNotifier) Wait() {
	n.wg.Wait()
}
