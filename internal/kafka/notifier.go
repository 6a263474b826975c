package kafka

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/notify"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"strconv"
	"time"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Notifier turns status changes into StatusChanged envelopes.
type Notifier struct {
	pub     publisher
	service string
}

func NewNotifier(p publisher, service string) *Notifier {
	return &Notifier{pub: p, service: service}
}

func (n *Notifier) NotifyStatusChange(ctx context.Context, c notify.Change) error {
	at := c.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	key := PartitionKey(c.Kind, c.EntityID)
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventStatusChanged,
		EventVersion:  EventVersion,
		OccurredAt:    at,
		Producer:      n.service,
		TraceID:       traceID(ctx),
		CorrelationID: string(key),
		Payload: MustMarshal(StatusChangedPayload{
			EntityKind: c.Kind,
			EntityID:   c.EntityID,
			OldStatus:  c.From,
			NewStatus:  c.To,
			ChangedAt:  at,
		}),
	}
	err := n.pub.Publish(key, MustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(EventStatusChanged)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(EventVersion))},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

type traceKey struct{}

// WithTraceID tags ctx so published envelopes carry the request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}
