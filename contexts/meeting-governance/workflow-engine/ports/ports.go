package ports

import (
	"context"
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
)

type WorkflowRepository interface {
	CreateInstance(ctx context.Context, instance entities.WorkflowInstance) error
	GetInstance(ctx context.Context, instanceID string) (entities.WorkflowInstance, error)
	GetInstanceByMeeting(ctx context.Context, meetingID string) (entities.WorkflowInstance, bool, error)
	// SaveInstance persists the instance only when the stored version still
	// matches expectedVersion, bumping the version on success. A mismatch
	// returns ErrStaleInstance: exactly one of two concurrent transitions
	// from the same stage index can win.
	SaveInstance(ctx context.Context, instance entities.WorkflowInstance, expectedVersion int64) error
	AppendTransition(ctx context.Context, transition entities.StageTransition) error
	ListTransitions(ctx context.Context, instanceID string) ([]entities.StageTransition, error)
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
