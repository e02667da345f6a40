package commands

import (
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/ports"
)

// newProxyEnvelope builds canonical envelopes for grant lifecycle events.
// Events are partitioned by meeting for stable ordering on meeting-scoped
// audit consumers.
func newProxyEnvelope(
	eventID string,
	eventType string,
	meetingID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		SourceService: "proxy-graph",
		OccurredAt:    occurredAt.UTC(),
		SchemaVersion: 1,
		PartitionKey:  meetingID,
		Data:          payload,
	}, nil
}
