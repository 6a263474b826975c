package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TopicStatusChanged = "market.status.changed"
	EventStatusChanged = "StatusChanged"
	EventVersion       = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // StatusChanged
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "market-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // kind:id
	Payload       json.RawMessage `json:"payload"`
}

type StatusChangedPayload struct {
	EntityKind string    `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status"`
	ChangedAt  time.Time `json:"changed_at"`
}

// PartitionKey keeps every event of one entity on one partition, in order.
func PartitionKey(kind string, id int64) []byte {
	return []byte(fmt.Sprintf("%s:%d", kind, id))
}
