package ports

import (
	"context"
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
)

type ResolutionRepository interface {
	CreateResolution(ctx context.Context, resolution entities.Resolution) error
	GetResolution(ctx context.Context, resolutionID string) (entities.Resolution, error)
	ListResolutionsByMeeting(ctx context.Context, meetingID string) ([]entities.Resolution, error)
	UpdateResolution(ctx context.Context, resolution entities.Resolution) error
	// RecordRoundOutcome stores the outcome and updates the resolution
	// status in one atomic step. A second outcome for the same
	// (resolution, round) returns ErrOutcomeAlreadyRecorded.
	RecordRoundOutcome(ctx context.Context, outcome entities.RoundOutcome, status entities.ResolutionStatus) error
	ListRoundOutcomes(ctx context.Context, resolutionID string) ([]entities.RoundOutcome, error)
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
