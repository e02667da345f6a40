package ports

import (
	"context"
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
)

type GrantRepository interface {
	// SaveGrantSuperseding atomically revokes the grantor's prior active grant
	// for the meeting (reason "superseded") and inserts the new grant. The two
	// writes are one unit: concurrent grant/revoke on the same grantor must
	// never leave two active grants.
	SaveGrantSuperseding(ctx context.Context, grant entities.ProxyGrant, revokedAt time.Time) (entities.ProxyGrant, bool, error)
	SaveGrant(ctx context.Context, grant entities.ProxyGrant) error
	GetGrant(ctx context.Context, grantID string) (entities.ProxyGrant, error)
	GetActiveGrantByGrantor(ctx context.Context, meetingID string, grantorID string) (entities.ProxyGrant, bool, error)
	ListGrantsByMeeting(ctx context.Context, meetingID string) ([]entities.ProxyGrant, error)
	// ExpireActiveBefore transitions every active grant whose window ended
	// before now to expired and returns the rows it changed. Idempotent.
	ExpireActiveBefore(ctx context.Context, now time.Time) ([]entities.ProxyGrant, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	GrantID     string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SourceService string          `json:"source_service"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion int             `json:"schema_version"`
	PartitionKey  string          `json:"partition_key"`
	Data          json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
