package bootstrap

import (
	"context"
	"errors"
	"time"

	proxycommands "boardroom/contexts/meeting-governance/proxy-graph/application/commands"
	proxyqueries "boardroom/contexts/meeting-governance/proxy-graph/application/queries"
	proxyports "boardroom/contexts/meeting-governance/proxy-graph/ports"
	resolutioncommands "boardroom/contexts/meeting-governance/resolution-registry/application/commands"
	resolutionerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	resolutionports "boardroom/contexts/meeting-governance/resolution-registry/ports"
	rolequeries "boardroom/contexts/meeting-governance/role-registry/application/queries"
	votingports "boardroom/contexts/meeting-governance/voting-session/ports"
	workflowcommands "boardroom/contexts/meeting-governance/workflow-engine/application/commands"
	workflowports "boardroom/contexts/meeting-governance/workflow-engine/ports"
	"boardroom/internal/platform/messaging"
	"boardroom/internal/shared/events"
)

// WorkflowGateAdapter locks and releases voting stages on the workflow engine
// on behalf of the voting module.
type WorkflowGateAdapter struct {
	Engine workflowcommands.EngineUseCase
}

func (a WorkflowGateAdapter) BeginVoting(ctx context.Context, instanceID string, sessionID string) error {
	return a.Engine.BeginVoting(ctx, instanceID, sessionID)
}

func (a WorkflowGateAdapter) EndVoting(ctx context.Context, instanceID string, sessionID string) error {
	return a.Engine.EndVoting(ctx, instanceID, sessionID)
}

// RoleDirectoryAdapter answers eligibility questions from the role registry.
type RoleDirectoryAdapter struct {
	Weights rolequeries.WeightUseCase
}

func (a RoleDirectoryAdapter) ResolveVotingWeight(ctx context.Context, meetingID string, userID string) (float64, bool, error) {
	return a.Weights.ResolveVotingWeight(ctx, meetingID, userID)
}

func (a RoleDirectoryAdapter) ListEligibleVoters(ctx context.Context, meetingID string) ([]votingports.EligibleVoter, error) {
	listed, err := a.Weights.ListEligibleVoters(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	voters := make([]votingports.EligibleVoter, 0, len(listed))
	for _, voter := range listed {
		voters = append(voters, votingports.EligibleVoter{UserID: voter.UserID, Weight: voter.Weight})
	}
	return voters, nil
}

// ProxyResolverAdapter exposes the delegation graph to ballot casting.
type ProxyResolverAdapter struct {
	Grants  proxycommands.GrantUseCase
	Resolve proxyqueries.ResolveUseCase
}

func (a ProxyResolverAdapter) EffectiveHolder(ctx context.Context, meetingID string, grantorID string, at time.Time) (string, error) {
	return a.Resolve.EffectiveHolder(ctx, meetingID, grantorID, at)
}

func (a ProxyResolverAdapter) HeldGrants(ctx context.Context, meetingID string, holderID string, at time.Time) ([]votingports.HeldGrant, error) {
	held, err := a.Resolve.HeldGrants(ctx, meetingID, holderID, at)
	if err != nil {
		return nil, err
	}
	grants := make([]votingports.HeldGrant, 0, len(held))
	for _, grant := range held {
		grants = append(grants, votingports.HeldGrant{
			GrantID:   grant.GrantID,
			GrantorID: grant.GrantorID,
			Weight:    grant.Weight,
		})
	}
	return grants, nil
}

func (a ProxyResolverAdapter) MarkVotesCast(ctx context.Context, grantID string) error {
	return a.Grants.MarkVotesCast(ctx, []string{grantID})
}

// ResolutionRecorderAdapter writes decided tallies into the resolution
// registry. A repeated record for the same round is treated as already done
// so session close stays retryable after a partial failure.
type ResolutionRecorderAdapter struct {
	Registry resolutioncommands.RegistryUseCase
}

func (a ResolutionRecorderAdapter) RecordOutcome(ctx context.Context, record votingports.OutcomeRecord) error {
	_, err := a.Registry.RecordOutcome(ctx, resolutioncommands.RecordOutcomeCommand{
		ResolutionID:  record.ResolutionID,
		Round:         record.Round,
		SessionID:     record.SessionID,
		ForWeight:     record.ForWeight,
		AgainstWeight: record.AgainstWeight,
		AbstainWeight: record.AbstainWeight,
		Passed:        record.Passed,
	})
	if errors.Is(err, resolutionerrors.ErrOutcomeAlreadyRecorded) {
		return nil
	}
	return err
}

// The publisher adapters below translate each module's outbox envelope into
// the canonical bus envelope. The partition key doubles as the entity ID
// because every module partitions its events by the aggregate they concern.

type proxyPublisher struct {
	bus *messaging.Kafka
}

func (p proxyPublisher) Publish(ctx context.Context, topic string, event proxyports.EventEnvelope) error {
	return p.bus.Publish(ctx, topic, events.Envelope{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SourceService:  event.SourceService,
		OccurredAtUTC:  event.OccurredAt,
		CorrelationID:  event.PartitionKey,
		EntityType:     "proxy_grant",
		EntityID:       event.PartitionKey,
		PayloadVersion: event.SchemaVersion,
		Payload:        event.Data,
	})
}

type workflowPublisher struct {
	bus *messaging.Kafka
}

func (p workflowPublisher) Publish(ctx context.Context, topic string, event workflowports.EventEnvelope) error {
	return p.bus.Publish(ctx, topic, events.Envelope{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SourceService:  event.SourceService,
		OccurredAtUTC:  event.OccurredAt,
		CorrelationID:  event.PartitionKey,
		EntityType:     "workflow_instance",
		EntityID:       event.PartitionKey,
		PayloadVersion: event.SchemaVersion,
		Payload:        event.Data,
	})
}

type votingPublisher struct {
	bus *messaging.Kafka
}

func (p votingPublisher) Publish(ctx context.Context, topic string, event votingports.EventEnvelope) error {
	return p.bus.Publish(ctx, topic, events.Envelope{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SourceService:  event.SourceService,
		OccurredAtUTC:  event.OccurredAt,
		CorrelationID:  event.PartitionKey,
		EntityType:     "voting_session",
		EntityID:       event.PartitionKey,
		PayloadVersion: event.SchemaVersion,
		Payload:        event.Data,
	})
}

type resolutionPublisher struct {
	bus *messaging.Kafka
}

func (p resolutionPublisher) Publish(ctx context.Context, topic string, event resolutionports.EventEnvelope) error {
	return p.bus.Publish(ctx, topic, events.Envelope{
		EventID:        event.EventID,
		EventType:      event.EventType,
		SourceService:  event.SourceService,
		OccurredAtUTC:  event.OccurredAt,
		CorrelationID:  event.PartitionKey,
		EntityType:     "resolution",
		EntityID:       event.PartitionKey,
		PayloadVersion: event.SchemaVersion,
		Payload:        event.Data,
	})
}

var (
	_ votingports.WorkflowGate       = WorkflowGateAdapter{}
	_ votingports.RoleDirectory      = RoleDirectoryAdapter{}
	_ votingports.ProxyResolver      = ProxyResolverAdapter{}
	_ votingports.ResolutionRecorder = ResolutionRecorderAdapter{}
	_ proxyports.EventPublisher      = proxyPublisher{}
	_ workflowports.EventPublisher   = workflowPublisher{}
	_ votingports.EventPublisher     = votingPublisher{}
	_ resolutionports.EventPublisher = resolutionPublisher{}
)
