package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store keeps grants under one mutex, which makes grant-plus-supersede a
// single atomic unit per grantor.
type Store struct {
	mu sync.RWMutex

	grants      map[string]entities.ProxyGrant
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
}

func NewStore(seed []entities.ProxyGrant) *Store {
	grants := make(map[string]entities.ProxyGrant, len(seed))
	for _, grant := range seed {
		grants[grant.GrantID] = grant
	}
	return &Store{
		grants:      grants,
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) SaveGrantSuperseding(
	_ context.Context,
	grant entities.ProxyGrant,
	revokedAt time.Time,
) (entities.ProxyGrant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var superseded entities.ProxyGrant
	had := false
	for key, existing := range s.grants {
		if existing.Status != entities.GrantStatusActive {
			continue
		}
		if existing.MeetingID != grant.MeetingID || !strings.EqualFold(existing.GrantorID, grant.GrantorID) {
			continue
		}
		existing.Status = entities.GrantStatusRevoked
		existing.RevocationReason = entities.RevocationReasonSuperseded
		existing.UpdatedAt = revokedAt.UTC()
		s.grants[key] = existing
		superseded = existing
		had = true
	}

	s.grants[strings.TrimSpace(grant.GrantID)] = grant
	return superseded, had, nil
}

func (s *Store) SaveGrant(_ context.Context, grant entities.ProxyGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[strings.TrimSpace(grant.GrantID)] = grant
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID string) (entities.ProxyGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[strings.TrimSpace(grantID)]
	if !ok {
		return entities.ProxyGrant{}, domainerrors.ErrGrantNotFound
	}
	return grant, nil
}

func (s *Store) GetActiveGrantByGrantor(
	_ context.Context,
	meetingID string,
	grantorID string,
) (entities.ProxyGrant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meetingID = strings.TrimSpace(meetingID)
	grantorID = strings.TrimSpace(grantorID)
	for _, grant := range s.grants {
		if grant.Status != entities.GrantStatusActive {
			continue
		}
		if grant.MeetingID == meetingID && strings.EqualFold(grant.GrantorID, grantorID) {
			return grant, true, nil
		}
	}
	return entities.ProxyGrant{}, false, nil
}

func (s *Store) ListGrantsByMeeting(_ context.Context, meetingID string) ([]entities.ProxyGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.ProxyGrant, 0)
	for _, grant := range s.grants {
		if grant.MeetingID == strings.TrimSpace(meetingID) {
			items = append(items, grant)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) ExpireActiveBefore(_ context.Context, now time.Time) ([]entities.ProxyGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.UTC()
	expired := make([]entities.ProxyGrant, 0)
	for key, grant := range s.grants {
		if grant.Status != entities.GrantStatusActive {
			continue
		}
		if grant.EffectiveUntil == nil || !grant.EffectiveUntil.UTC().Before(now) {
			continue
		}
		grant.Status = entities.GrantStatusExpired
		grant.UpdatedAt = now
		s.grants[key] = grant
		expired = append(expired, grant)
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	existing, exists := s.idempotency[key]
	if exists {
		if existing.RequestHash != record.RequestHash || existing.GrantID != record.GrantID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		GrantID:     strings.TrimSpace(record.GrantID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
