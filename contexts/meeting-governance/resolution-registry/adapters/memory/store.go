package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	"boardroom/contexts/meeting-governance/resolution-registry/ports"
)

type outcomeKey struct {
	resolutionID string
	round        int
}

type outboxRow struct {
	message   ports.OutboxMessage
	published bool
}

// Store keeps resolutions in process memory for tests and local runs.
type Store struct {
	mu          sync.RWMutex
	resolutions map[string]entities.Resolution
	outcomes    map[outcomeKey]entities.RoundOutcome
	outbox      []outboxRow
}

func NewStore() *Store {
	return &Store{
		resolutions: make(map[string]entities.Resolution),
		outcomes:    make(map[outcomeKey]entities.RoundOutcome),
	}
}

func (s *Store) CreateResolution(_ context.Context, resolution entities.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resolutions[resolution.ResolutionID]; exists {
		return domainerrors.ErrConflict
	}
	s.resolutions[resolution.ResolutionID] = resolution
	return nil
}

func (s *Store) GetResolution(_ context.Context, resolutionID string) (entities.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resolution, ok := s.resolutions[resolutionID]
	if !ok {
		return entities.Resolution{}, domainerrors.ErrResolutionNotFound
	}
	return resolution, nil
}

func (s *Store) ListResolutionsByMeeting(_ context.Context, meetingID string) ([]entities.Resolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resolutions []entities.Resolution
	for _, resolution := range s.resolutions {
		if resolution.MeetingID == meetingID {
			resolutions = append(resolutions, resolution)
		}
	}
	return resolutions, nil
}

func (s *Store) UpdateResolution(_ context.Context, resolution entities.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resolutions[resolution.ResolutionID]; !ok {
		return domainerrors.ErrResolutionNotFound
	}
	s.resolutions[resolution.ResolutionID] = resolution
	return nil
}

func (s *Store) RecordRoundOutcome(_ context.Context, outcome entities.RoundOutcome, status entities.ResolutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolution, ok := s.resolutions[outcome.ResolutionID]
	if !ok {
		return domainerrors.ErrResolutionNotFound
	}
	key := outcomeKey{resolutionID: outcome.ResolutionID, round: outcome.Round}
	if _, exists := s.outcomes[key]; exists {
		return domainerrors.ErrOutcomeAlreadyRecorded
	}
	s.outcomes[key] = outcome
	resolution.Status = status
	resolution.UpdatedAt = outcome.RecordedAt
	s.resolutions[outcome.ResolutionID] = resolution
	return nil
}

func (s *Store) ListRoundOutcomes(_ context.Context, resolutionID string) ([]entities.RoundOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var outcomes []entities.RoundOutcome
	for key, outcome := range s.outcomes {
		if key.resolutionID == resolutionID {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.outbox {
		if existing.message.OutboxID == envelope.EventID {
			return nil
		}
	}
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
	_ ports.ResolutionRepository = (*Store)(nil)
	_ ports.OutboxWriter         = (*Store)(nil)
	_ ports.OutboxRepository     = (*Store)(nil)
	_ ports.Clock                = (*Store)(nil)
	_ ports.IDGenerator          = (*Store)(nil)
)
