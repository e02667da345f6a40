package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	"boardroom/contexts/meeting-governance/voting-session/ports"
	"boardroom/internal/shared/outbox"
)

type sessionModel struct {
	SessionID            string     `gorm:"column:session_id;primaryKey"`
	MeetingID            string     `gorm:"column:meeting_id;index"`
	WorkflowInstanceID   string     `gorm:"column:workflow_instance_id;index"`
	Title                string     `gorm:"column:title"`
	Status               string     `gorm:"column:status;index"`
	Anonymity            string     `gorm:"column:anonymity"`
	QuorumRequired       int        `gorm:"column:quorum_required"`
	EligibleVoterCount   int        `gorm:"column:eligible_voter_count"`
	PassThresholdPercent float64    `gorm:"column:pass_threshold_percent"`
	Round                int        `gorm:"column:round"`
	Deadline             *time.Time `gorm:"column:deadline"`
	DeadlineNotified     bool       `gorm:"column:deadline_notified"`
	OpenedBy             string     `gorm:"column:opened_by"`
	OpenedAt             time.Time  `gorm:"column:opened_at"`
	ClosedAt             *time.Time `gorm:"column:closed_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "voting_sessions" }

type itemModel struct {
	ItemID        string  `gorm:"column:item_id;primaryKey"`
	SessionID     string  `gorm:"column:session_id;index"`
	ResolutionID  string  `gorm:"column:resolution_id"`
	Title         string  `gorm:"column:title"`
	Ordinal       int     `gorm:"column:ordinal"`
	ForWeight     float64 `gorm:"column:for_weight"`
	AgainstWeight float64 `gorm:"column:against_weight"`
	AbstainWeight float64 `gorm:"column:abstain_weight"`
	VoterCount    int     `gorm:"column:voter_count"`
	QuorumMet     bool    `gorm:"column:quorum_met"`
	Passed        bool    `gorm:"column:passed"`
	Decided       bool    `gorm:"column:decided"`
}

func (itemModel) TableName() string { return "voting_session_items" }

type ballotModel struct {
	BallotID       string    `gorm:"column:ballot_id;primaryKey"`
	SessionID      string    `gorm:"column:session_id;index"`
	ItemID         string    `gorm:"column:item_id;uniqueIndex:idx_ballot_identity"`
	VoterID        string    `gorm:"column:voter_id;uniqueIndex:idx_ballot_identity"`
	Round          int       `gorm:"column:round;uniqueIndex:idx_ballot_identity"`
	Choice         string    `gorm:"column:choice"`
	OwnWeight      float64   `gorm:"column:own_weight"`
	ProxyWeight    float64   `gorm:"column:proxy_weight"`
	IdempotencyKey string    `gorm:"column:idempotency_key"`
	ProxyGrantIDs  string    `gorm:"column:proxy_grant_ids"`
	CastAt         time.Time `gorm:"column:cast_at"`
}

func (ballotModel) TableName() string { return "voting_ballots" }

type idempotencyModel struct {
	Key         string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	BallotID    string    `gorm:"column:ballot_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at;index"`
}

func (idempotencyModel) TableName() string { return "voting_idempotency" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "voting_outbox" }

// Repository persists voting sessions in Postgres. Ballot uniqueness per
// (item, voter, round) is the composite unique index; the status transition
// uses a guarded update so close and cancel cannot race.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) CreateSession(ctx context.Context, session entities.VotingSession, items []entities.SessionItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toSessionModel(session)
		if err := tx.Create(&model).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return err
		}
		for _, item := range items {
			itemRow := toItemModel(item)
			if err := tx.Create(&itemRow).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error) {
	var model sessionModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.VotingSession{}, domainerrors.ErrSessionNotFound
	}
	if err != nil {
		return entities.VotingSession{}, err
	}
	return toSessionEntity(model), nil
}

func (r *Repository) UpdateSessionStatus(ctx context.Context, sessionID string, expected, next entities.SessionStatus, closedAt *time.Time, updatedAt time.Time) error {
	updates := map[string]any{
		"status":     string(next),
		"updated_at": updatedAt.UTC(),
	}
	if closedAt != nil {
		at := closedAt.UTC()
		updates["closed_at"] = &at
	}
	result := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ? AND status = ?", sessionID, string(expected)).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&sessionModel{}).
			Where("session_id = ?", sessionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domainerrors.ErrSessionNotFound
		}
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListItems(ctx context.Context, sessionID string) ([]entities.SessionItem, error) {
	var models []itemModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("ordinal ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	items := make([]entities.SessionItem, 0, len(models))
	for _, model := range models {
		items = append(items, toItemEntity(model))
	}
	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, itemID string) (entities.SessionItem, error) {
	var model itemModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.SessionItem{}, domainerrors.ErrItemNotFound
	}
	if err != nil {
		return entities.SessionItem{}, err
	}
	return toItemEntity(model), nil
}

func (r *Repository) SaveItemTally(ctx context.Context, item entities.SessionItem) error {
	result := r.db.WithContext(ctx).
		Model(&itemModel{}).
		Where("item_id = ?", item.ItemID).
		Updates(map[string]any{
			"for_weight":     item.ForWeight,
			"against_weight": item.AgainstWeight,
			"abstain_weight": item.AbstainWeight,
			"voter_count":    item.VoterCount,
			"quorum_met":     item.QuorumMet,
			"passed":         item.Passed,
			"decided":        item.Decided,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrItemNotFound
	}
	return nil
}

func (r *Repository) SaveBallot(ctx context.Context, ballot entities.Ballot) error {
	model := ballotModel{
		BallotID:       ballot.BallotID,
		SessionID:      ballot.SessionID,
		ItemID:         ballot.ItemID,
		VoterID:        ballot.VoterID,
		Round:          ballot.Round,
		Choice:         string(ballot.Choice),
		OwnWeight:      ballot.OwnWeight,
		ProxyWeight:    ballot.ProxyWeight,
		IdempotencyKey: ballot.IdempotencyKey,
		ProxyGrantIDs:  strings.Join(ballot.ProxyGrantIDs, ","),
		CastAt:         ballot.CastAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateBallot
		}
		return err
	}
	return nil
}

func (r *Repository) ListBallotsByItem(ctx context.Context, itemID string) ([]entities.Ballot, error) {
	var models []ballotModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("cast_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toBallotEntities(models), nil
}

func (r *Repository) ListBallotsBySession(ctx context.Context, sessionID string) ([]entities.Ballot, error) {
	var models []ballotModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("cast_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toBallotEntities(models), nil
}

func (r *Repository) ListOpenSessionsPastDeadline(ctx context.Context, at time.Time) ([]entities.VotingSession, error) {
	var models []sessionModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ? AND deadline_notified = false", string(entities.SessionStatusOpen), at.UTC()).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	sessions := make([]entities.VotingSession, 0, len(models))
	for _, model := range models {
		sessions = append(sessions, toSessionEntity(model))
	}
	return sessions, nil
}

func (r *Repository) MarkDeadlineNotified(ctx context.Context, sessionID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"deadline_notified": true,
			"updated_at":        at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrSessionNotFound
	}
	return nil
}

func (r *Repository) GetIdempotency(ctx context.Context, key string) (ports.IdempotencyRecord, bool, error) {
	var model idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND expires_at > ?", key, time.Now().UTC()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return ports.IdempotencyRecord{}, false, err
	}
	return ports.IdempotencyRecord{
		Key:         model.Key,
		RequestHash: model.RequestHash,
		BallotID:    model.BallotID,
		ExpiresAt:   model.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) PutIdempotency(ctx context.Context, record ports.IdempotencyRecord) error {
	model := idempotencyModel{
		Key:         record.Key,
		RequestHash: record.RequestHash,
		BallotID:    record.BallotID,
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	model := outboxModel{
		OutboxID:     envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	var models []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	messages := make([]ports.OutboxMessage, 0, len(models))
	for _, model := range models {
		messages = append(messages, ports.OutboxMessage{
			OutboxID:     model.OutboxID,
			EventType:    model.EventType,
			PartitionKey: model.PartitionKey,
			Payload:      model.Payload,
			CreatedAt:    model.CreatedAt.UTC(),
		})
	}
	return messages, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	publishedAt = publishedAt.UTC()
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":       outbox.StatusPublished,
			"published_at": &publishedAt,
		}).Error
}

func toSessionModel(session entities.VotingSession) sessionModel {
	return sessionModel{
		SessionID:            session.SessionID,
		MeetingID:            session.MeetingID,
		WorkflowInstanceID:   session.WorkflowInstanceID,
		Title:                session.Title,
		Status:               string(session.Status),
		Anonymity:            string(session.Anonymity),
		QuorumRequired:       session.QuorumRequired,
		EligibleVoterCount:   session.EligibleVoterCount,
		PassThresholdPercent: session.PassThresholdPercent,
		Round:                session.Round,
		Deadline:             session.Deadline,
		DeadlineNotified:     session.DeadlineNotified,
		OpenedBy:             session.OpenedBy,
		OpenedAt:             session.OpenedAt.UTC(),
		ClosedAt:             session.ClosedAt,
		CreatedAt:            session.CreatedAt.UTC(),
		UpdatedAt:            session.UpdatedAt.UTC(),
	}
}

func toSessionEntity(model sessionModel) entities.VotingSession {
	return entities.VotingSession{
		SessionID:            model.SessionID,
		MeetingID:            model.MeetingID,
		WorkflowInstanceID:   model.WorkflowInstanceID,
		Title:                model.Title,
		Status:               entities.SessionStatus(model.Status),
		Anonymity:            entities.AnonymityLevel(model.Anonymity),
		QuorumRequired:       model.QuorumRequired,
		EligibleVoterCount:   model.EligibleVoterCount,
		PassThresholdPercent: model.PassThresholdPercent,
		Round:                model.Round,
		Deadline:             model.Deadline,
		DeadlineNotified:     model.DeadlineNotified,
		OpenedBy:             model.OpenedBy,
		OpenedAt:             model.OpenedAt.UTC(),
		ClosedAt:             model.ClosedAt,
		CreatedAt:            model.CreatedAt.UTC(),
		UpdatedAt:            model.UpdatedAt.UTC(),
	}
}

func toItemModel(item entities.SessionItem) itemModel {
	return itemModel{
		ItemID:        item.ItemID,
		SessionID:     item.SessionID,
		ResolutionID:  item.ResolutionID,
		Title:         item.Title,
		Ordinal:       item.Ordinal,
		ForWeight:     item.ForWeight,
		AgainstWeight: item.AgainstWeight,
		AbstainWeight: item.AbstainWeight,
		VoterCount:    item.VoterCount,
		QuorumMet:     item.QuorumMet,
		Passed:        item.Passed,
		Decided:       item.Decided,
	}
}

func toItemEntity(model itemModel) entities.SessionItem {
	return entities.SessionItem{
		ItemID:        model.ItemID,
		SessionID:     model.SessionID,
		ResolutionID:  model.ResolutionID,
		Title:         model.Title,
		Ordinal:       model.Ordinal,
		ForWeight:     model.ForWeight,
		AgainstWeight: model.AgainstWeight,
		AbstainWeight: model.AbstainWeight,
		VoterCount:    model.VoterCount,
		QuorumMet:     model.QuorumMet,
		Passed:        model.Passed,
		Decided:       model.Decided,
	}
}

func toBallotEntities(models []ballotModel) []entities.Ballot {
	ballots := make([]entities.Ballot, 0, len(models))
	for _, model := range models {
		var grantIDs []string
		if model.ProxyGrantIDs != "" {
			grantIDs = strings.Split(model.ProxyGrantIDs, ",")
		}
		ballots = append(ballots, entities.Ballot{
			BallotID:       model.BallotID,
			SessionID:      model.SessionID,
			ItemID:         model.ItemID,
			VoterID:        model.VoterID,
			Choice:         entities.BallotChoice(model.Choice),
			OwnWeight:      model.OwnWeight,
			ProxyWeight:    model.ProxyWeight,
			Round:          model.Round,
			IdempotencyKey: model.IdempotencyKey,
			ProxyGrantIDs:  grantIDs,
			CastAt:         model.CastAt.UTC(),
		})
	}
	return ballots
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) { return uuid.NewString(), nil }

var (
	_ ports.SessionRepository = (*Repository)(nil)
	_ ports.IdempotencyStore  = (*Repository)(nil)
	_ ports.OutboxWriter      = (*Repository)(nil)
	_ ports.OutboxRepository  = (*Repository)(nil)
	_ ports.Clock             = SystemClock{}
	_ ports.IDGenerator       = UUIDGenerator{}
)
