package kafka

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-realtime-market/internal/notify"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"testing"
	"time"
)

type fakePublisher struct {
	key, value []byte
	headers    []kafka.Header
	err        error
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	f.key, f.value, f.headers = key, value, headers
	return f.err
}

func TestNotifierPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNotifier(pub, "market-api")
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	ctx := WithTraceID(context.Background(), "req-1")
	err := n.NotifyStatusChange(ctx, notify.Change{Kind: "market_order", EntityID: 7, From: "Pending", To: "Confirmed", At: at})
	require.NoError(t, err)

	assert.Equal(t, "market_order:7", string(pub.key))
	require.Len(t, pub.headers, 2)
	assert.Equal(t, "x-event-type", pub.headers[0].Key)
	assert.Equal(t, EventStatusChanged, string(pub.headers[0].Value))

	ev, err := UnmarshalEnvelope(pub.value)
	require.NoError(t, err)
	assert.Equal(t, EventStatusChanged, ev.EventType)
	assert.Equal(t, 1, ev.EventVersion)
	assert.Equal(t, "market-api", ev.Producer)
	assert.Equal(t, "req-1", ev.TraceID)
	assert.Equal(t, "market_order:7", ev.CorrelationID)
	assert.NotEmpty(t, ev.EventID)

	p, err := UnwrapPayload[StatusChangedPayload](ev.Payload)
	require.NoError(t, err)
	assert.Equal(t, StatusChangedPayload{EntityKind: "market_order", EntityID: 7, OldStatus: "Pending", NewStatus: "Confirmed", ChangedAt: at}, p)
}

func TestNotifierWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: ErrInboxFull}
	err := NewNotifier(pub, "svc").NotifyStatusChange(context.Background(), notify.Change{Kind: "order", EntityID: 1, To: "Pending"})
	require.ErrorIs(t, err, ErrInboxFull)
}

func TestProducerPublishNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, TopicStatusChanged, 1, zaptest.NewLogger(t))

	require.NoError(t, p.Publish([]byte("k"), []byte("v1")))
	require.ErrorIs(t, p.Publish([]byte("k"), []byte("v2")), ErrInboxFull)

	p.Close()
	p.Close()
	require.True(t, errors.Is(p.Publish([]byte("k"), []byte("v3")), ErrClosed))
}

func TestUnwrapPayloadError(t *testing.T) {
	_, err := UnwrapPayload[StatusChangedPayload]([]byte(`{"entity_id":"x"}`))
	require.Error(t, err)
	_, err = UnmarshalEnvelope([]byte("nope"))
	require.Error(t, err)
}
