package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"boardroom/contexts/meeting-governance/voting-session/application"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

// OutboxRelay drains pending voting outbox rows into the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)

	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}
	rows, err := r.Outbox.ListPendingOutbox(ctx, batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, row := range rows {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.ErrorContext(ctx, "outbox payload decode failed",
				slog.String("event", "voting_outbox_decode_failed"),
				slog.String("module", "voting-session"),
				slog.String("layer", "worker"),
				slog.String("outbox_id", row.OutboxID),
				slog.String("error", err.Error()),
			)
			continue
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.ErrorContext(ctx, "outbox publish failed",
				slog.String("event", "voting_outbox_publish_failed"),
				slog.String("module", "voting-session"),
				slog.String("layer", "worker"),
				slog.String("outbox_id", row.OutboxID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := r.Outbox.MarkOutboxPublished(ctx, row.OutboxID, r.Clock.Now().UTC()); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
