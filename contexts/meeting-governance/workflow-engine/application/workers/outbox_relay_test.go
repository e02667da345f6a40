package workers_test

import (
	"context"
	"errors"
	"testing"

	workflowengine "boardroom/contexts/meeting-governance/workflow-engine"
	"boardroom/contexts/meeting-governance/workflow-engine/application/commands"
	"boardroom/contexts/meeting-governance/workflow-engine/application/workers"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

type capturePublisher struct {
	failFirst bool
	topics    []string
	events    []ports.EventEnvelope
}

func (p *capturePublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.failFirst {
		p.failFirst = false
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func TestOutboxRelayPublishesPendingRowsOnce(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	if _, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-1",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	}); err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	publisher := &capturePublisher{}
	relay := workers.OutboxRelay{
		Outbox:    module.Store,
		Publisher: publisher,
		Clock:     module.Store,
	}

	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected 1 published event, got %d", published)
	}
	if publisher.topics[0] != "workflow.meeting_opened" {
		t.Fatalf("expected event-type topic, got %s", publisher.topics[0])
	}
	if publisher.events[0].SourceService != "workflow-engine" {
		t.Fatalf("unexpected source service %s", publisher.events[0].SourceService)
	}

	published, err = relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second relay run failed: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected drained outbox, got %d", published)
	}
}

func TestOutboxRelayRetriesFailedPublish(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	if _, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-2",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	}); err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	publisher := &capturePublisher{failFirst: true}
	relay := workers.OutboxRelay{
		Outbox:    module.Store,
		Publisher: publisher,
		Clock:     module.Store,
	}

	published, err := relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected failed publish to keep row pending, got %d", published)
	}

	published, err = relay.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("retry run failed: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected retry to publish the row, got %d", published)
	}
}
