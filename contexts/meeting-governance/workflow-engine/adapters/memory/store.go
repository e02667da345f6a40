package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

// Store keeps workflow state in process memory. The single mutex makes the
// versioned save a true compare-and-swap for unit tests and local runs.
type Store struct {
	mu          sync.RWMutex
	instances   map[string]entities.WorkflowInstance
	byMeeting   map[string]string
	transitions map[string][]entities.StageTransition
	outbox      []outboxRow
}

type outboxRow struct {
	message   ports.OutboxMessage
	published bool
}

func NewStore() *Store {
	return &Store{
		instances:   make(map[string]entities.WorkflowInstance),
		byMeeting:   make(map[string]string),
		transitions: make(map[string][]entities.StageTransition),
	}
}

func (s *Store) CreateInstance(_ context.Context, instance entities.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.InstanceID]; exists {
		return domainerrors.ErrConflict
	}
	if _, exists := s.byMeeting[instance.MeetingID]; exists {
		return domainerrors.ErrConflict
	}
	instance.StageSequence = append([]string(nil), instance.StageSequence...)
	s.instances[instance.InstanceID] = instance
	s.byMeeting[instance.MeetingID] = instance.InstanceID
	return nil
}

func (s *Store) GetInstance(_ context.Context, instanceID string) (entities.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[instanceID]
	if !ok {
		return entities.WorkflowInstance{}, domainerrors.ErrInstanceNotFound
	}
	instance.StageSequence = append([]string(nil), instance.StageSequence...)
	return instance, nil
}

func (s *Store) GetInstanceByMeeting(_ context.Context, meetingID string) (entities.WorkflowInstance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instanceID, ok := s.byMeeting[meetingID]
	if !ok {
		return entities.WorkflowInstance{}, false, nil
	}
	instance := s.instances[instanceID]
	instance.StageSequence = append([]string(nil), instance.StageSequence...)
	return instance, true, nil
}

func (s *Store) SaveInstance(_ context.Context, instance entities.WorkflowInstance, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instances[instance.InstanceID]
	if !ok {
		return domainerrors.ErrInstanceNotFound
	}
	if current.Version != expectedVersion {
		return domainerrors.ErrStaleInstance
	}
	instance.Version = expectedVersion + 1
	instance.StageSequence = append([]string(nil), instance.StageSequence...)
	s.instances[instance.InstanceID] = instance
	return nil
}

func (s *Store) AppendTransition(_ context.Context, transition entities.StageTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transitions[transition.InstanceID] = append(s.transitions[transition.InstanceID], transition)
	return nil
}

func (s *Store) ListTransitions(_ context.Context, instanceID string) ([]entities.StageTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]entities.StageTransition(nil), s.transitions[instanceID]...), nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.outbox = append(s.outbox, outboxRow{message: ports.OutboxMessage{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		CreatedAt:    envelope.OccurredAt,
	}})
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]ports.OutboxMessage, 0, limit)
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		pending = append(pending, row.message)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].message.OutboxID == outboxID {
			s.outbox[i].published = true
			return nil
		}
	}
	return nil
}

func (s *Store) Now() time.Time { return time.Now().UTC() }

func (s *Store) NewID(_ context.Context) (string, error) { return uuid.NewString(), nil }

var (
	_ ports.WorkflowRepository = (*Store)(nil)
	_ ports.OutboxWriter       = (*Store)(nil)
	_ ports.OutboxRepository   = (*Store)(nil)
	_ ports.Clock              = (*Store)(nil)
	_ ports.IDGenerator        = (*Store)(nil)
)
