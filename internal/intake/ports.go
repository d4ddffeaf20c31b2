package intake

import (
	"context"
	"time"
)

type Sender string

const (
	SenderClient    Sender = "client"
	SenderAssistant Sender = "assistant"
)

// ClientRecord — состояние диалога одного клиента.
// ExtractedData is non-nil exactly when IsComplete is true.
type ClientRecord struct {
	ClientID      string         `json:"client_id"`
	RawTranscript string         `json:"raw_transcript"`
	IsComplete    bool           `json:"is_complete"`
	MessageCount  int            `json:"message_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

// NewClientRecord returns the zero state of a fresh lifetime.
func NewClientRecord(clientID string, now time.Time) ClientRecord {
	return ClientRecord{
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone copies the record deeply enough that callers cannot reach the cache.
func (r ClientRecord) Clone() ClientRecord {
	out := r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	out.ExtractedData = cloneData(r.ExtractedData)
	return out
}

func cloneData(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type TurnResult struct {
	TurnID        string         `json:"turn_id"`
	Reply         string         `json:"reply"`
	Completed     bool           `json:"completed"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

type MessageLog struct {
	ID        int64
	ClientID  string
	Sender    Sender
	Content   string
	Timestamp time.Time
}

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventDelivered EventStatus = "delivered"
	EventFailed    EventStatus = "failed"
)

// IntegrationEvent is a side-channel fact about a client, e.g. a lead forwarded to operators.
type IntegrationEvent struct {
	ID        int64          `json:"id"`
	ClientID  string         `json:"client_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Status    EventStatus    `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is the persistence port. SaveClient must be atomic per record.
type Store interface {
	LoadClient(ctx context.Context, clientID string) (ClientRecord, bool, error)
	SaveClient(ctx context.Context, rec ClientRecord) error
	ListClientIDs(ctx context.Context) ([]string, error)

	AppendMessage(ctx context.Context, msg MessageLog) error
	ListMessages(ctx context.Context, clientID string, since time.Time, limit int) ([]MessageLog, error)

	CountAll(ctx context.Context) (int64, error)
	CountCompleted(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)

	RecordIntegrationEvent(ctx context.Context, ev IntegrationEvent) (int64, error)
	ListIntegrationEvents(ctx context.Context, clientID, kind string) ([]IntegrationEvent, error)
	UpdateIntegrationEventStatus(ctx context.Context, id int64, status EventStatus) error

	Ping(ctx context.Context) error
}
