package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishQueuesWithTopicAndKey(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, 4, zap.NewNop())
	p.Publish("order.created", []byte("7"), []byte(`{}`), kafka.Header{Key: "x-event-type", Value: []byte("OrderCreated")})

	require.Len(t, p.inbox, 1)
	m := <-p.inbox
	assert.Equal(t, "order.created", m.Topic)
	assert.Equal(t, []byte("7"), m.Key)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
}

func TestPublishDropsWhenFullOrClosed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := NewProducer([]string{"localhost:9092"}, 1, zap.New(core))

	p.Publish("order.created", []byte("1"), []byte(`{}`))
	p.Publish("order.created", []byte("2"), []byte(`{}`))
	assert.Len(t, p.inbox, 1)
	assert.Equal(t, 1, logs.FilterMessage("producer buffer full, event dropped").Len())

	<-p.inbox
	p.closed = true
	p.Publish("order.created", []byte("3"), []byte(`{}`))
	assert.Empty(t, p.inbox)
	assert.Equal(t, 1, logs.FilterMessage("producer closed, event dropped").Len())
}

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID int64 `json:"order_id"`
	}
	got, err := UnwrapPayload[payload]([]byte(`{"order_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.OrderID)

	_, err = UnwrapPayload[payload]([]byte(`not json`))
	assert.Error(t, err)
}
