package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("", "trade.settled", 1, map[string]int{"shares": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "trade.settled", env.EventType)
	assert.JSONEq(t, `{"shares":3}`, string(env.Data))

	_, err = NewEnvelope("", "", 1, nil)
	assert.Error(t, err)
	_, err = NewEnvelope("", "trade.settled", 0, nil)
	assert.Error(t, err)
}

func TestDeterministicEventID(t *testing.T) {
	a := DeterministicEventID("trade", "42")
	assert.Equal(t, a, DeterministicEventID("trade", "42"))
	assert.NotEqual(t, a, DeterministicEventID("trade", "43"))
}

func TestPublishJSON(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.EventType != "trade.settled" {
			return errors.New("unexpected event type " + env.EventType)
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewPublisher(producer)
	env, err := NewEnvelope("", "trade.settled", 1, map[string]string{"id": "1"})
	require.NoError(t, err)

	_, _, err = pub.PublishJSON(context.Background(), "trades.settled", "house-1", env)
	require.NoError(t, err)

	_, _, err = pub.PublishJSON(context.Background(), "trades.settled", "house-1", env)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, pub.Close())
}

func TestPublishJSON_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	pub := NewPublisher(producer)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := pub.PublishJSON(ctx, "trades.settled", "k", map[string]string{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, pub.Close())
}

func TestNewSyncProducer_RequiresBrokers(t *testing.T) {
	_, err := NewSyncProducer(nil)
	assert.Error(t, err)
}
