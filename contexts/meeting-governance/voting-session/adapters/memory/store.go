package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

type ballotKey struct {
	itemID  string
	voterID string
	round   int
}

type outboxRow struct {
	message   ports.OutboxMessage
	published bool
}

// Store keeps sessions, items, and ballots in process memory. The single
// mutex makes SaveBallot's uniqueness check and UpdateSessionStatus's
// compare-and-set atomic, which is what the race tests lean on.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]entities.VotingSession
	items       map[string]entities.SessionItem
	ballots     map[string]entities.Ballot
	ballotIndex map[ballotKey]string
	idempotency map[string]ports.IdempotencyRecord
	outbox      []outboxRow
}

func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]entities.VotingSession),
		items:       make(map[string]entities.SessionItem),
		ballots:     make(map[string]entities.Ballot),
		ballotIndex: make(map[ballotKey]string),
		idempotency: make(map[string]ports.IdempotencyRecord),
	}
}

func (s *Store) CreateSession(_ context.Context, session entities.VotingSession, items []entities.SessionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return domainerrors.ErrConflict
	}
	s.sessions[session.SessionID] = session
	for _, item := range items {
		s.items[item.ItemID] = item
	}
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (entities.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return entities.VotingSession{}, domainerrors.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, sessionID string, expected, next entities.SessionStatus, closedAt *time.Time, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domainerrors.ErrSessionNotFound
	}
	if session.Status != expected {
		return domainerrors.ErrConflict
	}
	session.Status = next
	if closedAt != nil {
		at := closedAt.UTC()
		session.ClosedAt = &at
	}
	session.UpdatedAt = updatedAt
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) ListItems(_ context.Context, sessionID string) ([]entities.SessionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []entities.SessionItem
	for _, item := range s.items {
		if item.SessionID == sessionID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Store) GetItem(_ context.Context, itemID string) (entities.SessionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return entities.SessionItem{}, domainerrors.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) SaveItemTally(_ context.Context, item entities.SessionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ItemID]; !ok {
		return domainerrors.ErrItemNotFound
	}
	s.items[item.ItemID] = item
	return nil
}

func (s *Store) SaveBallot(_ context.Context, ballot entities.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ballotKey{itemID: ballot.ItemID, voterID: ballot.VoterID, round: ballot.Round}
	if _, exists := s.ballotIndex[key]; exists {
		return domainerrors.ErrDuplicateBallot
	}
	ballot.ProxyGrantIDs = append([]string(nil), ballot.ProxyGrantIDs...)
	s.ballots[ballot.BallotID] = ballot
	s.ballotIndex[key] = ballot.BallotID
	return nil
}

func (s *Store) ListBallotsByItem(_ context.Context, itemID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ballots []entities.Ballot
	for _, ballot := range s.ballots {
		if ballot.ItemID == itemID {
			ballots = append(ballots, ballot)
		}
	}
	return ballots, nil
}

func (s *Store) ListBallotsBySession(_ context.Context, sessionID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ballots []entities.Ballot
	for _, ballot := range s.ballots {
		if ballot.SessionID == sessionID {
			ballots = append(ballots, ballot)
		}
	}
	return ballots, nil
}

func (s *Store) ListOpenSessionsPastDeadline(_ context.Context, at time.Time) ([]entities.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []entities.VotingSession
	for _, session := range s.sessions {
		if session.Status == entities.SessionStatusOpen && session.PastDeadline(at) && !session.DeadlineNotified {
			sessions = append(sessions, session)
		}
	}
	return sessions, nil
}

func (s *Store) MarkDeadlineNotified(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domainerrors.ErrSessionNotFound
	}
	session.DeadlineNotified = true
	session.UpdatedAt = at.UTC()
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) GetIdempotency(_ context.Context, key string) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutIdempotency(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idempotency[record.Key] = record
	return nil
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
	_ ports.SessionRepository = (*Store)(nil)
	_ ports.IdempotencyStore  = (*Store)(nil)
	_ ports.OutboxWriter      = (*Store)(nil)
	_ ports.OutboxRepository  = (*Store)(nil)
	_ ports.Clock             = (*Store)(nil)
	_ ports.IDGenerator       = (*Store)(nil)
)
