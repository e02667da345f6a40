package commands

import (
	"context"
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

const sourceService = "workflow-engine"

func newWorkflowEnvelope(ctx context.Context, idGen ports.IDGenerator, eventType, meetingID string, occurredAt time.Time, data any) (ports.EventEnvelope, error) {
	eventID, err := idGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		SourceService: sourceService,
		OccurredAt:    occurredAt.UTC(),
		SchemaVersion: 1,
		PartitionKey:  meetingID,
		Data:          payload,
	}, nil
}
