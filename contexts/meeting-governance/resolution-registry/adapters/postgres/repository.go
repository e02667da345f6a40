package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	"boardroom/contexts/meeting-governance/resolution-registry/ports"
	"boardroom/internal/shared/outbox"
)

type resolutionModel struct {
	ResolutionID string    `gorm:"column:resolution_id;primaryKey"`
	MeetingID    string    `gorm:"column:meeting_id;index"`
	Title        string    `gorm:"column:title"`
	Text         string    `gorm:"column:text"`
	Category     string    `gorm:"column:category"`
	ProposedBy   string    `gorm:"column:proposed_by"`
	SecondedBy   string    `gorm:"column:seconded_by"`
	Status       string    `gorm:"column:status;index"`
	SupersededBy string    `gorm:"column:superseded_by"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (resolutionModel) TableName() string { return "resolutions" }

type outcomeModel struct {
	ResolutionID  string    `gorm:"column:resolution_id;primaryKey"`
	Round         int       `gorm:"column:round;primaryKey"`
	SessionID     string    `gorm:"column:session_id"`
	ForWeight     float64   `gorm:"column:for_weight"`
	AgainstWeight float64   `gorm:"column:against_weight"`
	AbstainWeight float64   `gorm:"column:abstain_weight"`
	Passed        bool      `gorm:"column:passed"`
	RecordedAt    time.Time `gorm:"column:recorded_at"`
}

func (outcomeModel) TableName() string { return "resolution_round_outcomes" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "resolution_outbox" }

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

func (r *Repository) CreateResolution(ctx context.Context, resolution entities.Resolution) error {
	model := toResolutionModel(resolution)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetResolution(ctx context.Context, resolutionID string) (entities.Resolution, error) {
	var model resolutionModel
	err := r.db.WithContext(ctx).
		Where("resolution_id = ?", resolutionID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.Resolution{}, domainerrors.ErrResolutionNotFound
	}
	if err != nil {
		return entities.Resolution{}, err
	}
	return toResolutionEntity(model), nil
}

func (r *Repository) ListResolutionsByMeeting(ctx context.Context, meetingID string) ([]entities.Resolution, error) {
	var models []resolutionModel
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	resolutions := make([]entities.Resolution, 0, len(models))
	for _, model := range models {
		resolutions = append(resolutions, toResolutionEntity(model))
	}
	return resolutions, nil
}

func (r *Repository) UpdateResolution(ctx context.Context, resolution entities.Resolution) error {
	model := toResolutionModel(resolution)
	result := r.db.WithContext(ctx).
		Model(&resolutionModel{}).
		Where("resolution_id = ?", resolution.ResolutionID).
		Updates(map[string]any{
			"status":        model.Status,
			"superseded_by": model.SupersededBy,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrResolutionNotFound
	}
	return nil
}

// RecordRoundOutcome relies on the (resolution_id, round) primary key to
// reject a second outcome for the same round inside the transaction.
func (r *Repository) RecordRoundOutcome(ctx context.Context, outcome entities.RoundOutcome, status entities.ResolutionStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := outcomeModel{
			ResolutionID:  outcome.ResolutionID,
			Round:         outcome.Round,
			SessionID:     outcome.SessionID,
			ForWeight:     outcome.ForWeight,
			AgainstWeight: outcome.AgainstWeight,
			AbstainWeight: outcome.AbstainWeight,
			Passed:        outcome.Passed,
			RecordedAt:    outcome.RecordedAt.UTC(),
		}
		if err := tx.Create(&model).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrOutcomeAlreadyRecorded
			}
			return err
		}
		result := tx.Model(&resolutionModel{}).
			Where("resolution_id = ?", outcome.ResolutionID).
			Updates(map[string]any{
				"status":     string(status),
				"updated_at": outcome.RecordedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrResolutionNotFound
		}
		return nil
	})
}

func (r *Repository) ListRoundOutcomes(ctx context.Context, resolutionID string) ([]entities.RoundOutcome, error) {
	var models []outcomeModel
	err := r.db.WithContext(ctx).
		Where("resolution_id = ?", resolutionID).
		Order("round ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	outcomes := make([]entities.RoundOutcome, 0, len(models))
	for _, model := range models {
		outcomes = append(outcomes, entities.RoundOutcome{
			ResolutionID:  model.ResolutionID,
			Round:         model.Round,
			SessionID:     model.SessionID,
			ForWeight:     model.ForWeight,
			AgainstWeight: model.AgainstWeight,
			AbstainWeight: model.AbstainWeight,
			Passed:        model.Passed,
			RecordedAt:    model.RecordedAt.UTC(),
		})
	}
	return outcomes, nil
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

func toResolutionModel(resolution entities.Resolution) resolutionModel {
	return resolutionModel{
		ResolutionID: resolution.ResolutionID,
		MeetingID:    resolution.MeetingID,
		Title:        resolution.Title,
		Text:         resolution.Text,
		Category:     resolution.Category,
		ProposedBy:   resolution.ProposedBy,
		SecondedBy:   resolution.SecondedBy,
		Status:       string(resolution.Status),
		SupersededBy: resolution.SupersededBy,
		CreatedAt:    resolution.CreatedAt.UTC(),
		UpdatedAt:    resolution.UpdatedAt.UTC(),
	}
}

func toResolutionEntity(model resolutionModel) entities.Resolution {
	return entities.Resolution{
		ResolutionID: model.ResolutionID,
		MeetingID:    model.MeetingID,
		Title:        model.Title,
		Text:         model.Text,
		Category:     model.Category,
		ProposedBy:   model.ProposedBy,
		SecondedBy:   model.SecondedBy,
		Status:       entities.ResolutionStatus(model.Status),
		SupersededBy: model.SupersededBy,
		CreatedAt:    model.CreatedAt.UTC(),
		UpdatedAt:    model.UpdatedAt.UTC(),
	}
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
	_ ports.ResolutionRepository = (*Repository)(nil)
	_ ports.OutboxWriter         = (*Repository)(nil)
	_ ports.OutboxRepository     = (*Repository)(nil)
	_ ports.Clock                = SystemClock{}
	_ ports.IDGenerator          = UUIDGenerator{}
)
