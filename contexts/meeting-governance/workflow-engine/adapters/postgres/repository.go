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

	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
	"boardroom/internal/shared/outbox"
)

type workflowModel struct {
	InstanceID            string    `gorm:"column:instance_id;primaryKey"`
	MeetingID             string    `gorm:"column:meeting_id;uniqueIndex"`
	StageSequence         string    `gorm:"column:stage_sequence"`
	CurrentStageIndex     int       `gorm:"column:current_stage_index"`
	Status                string    `gorm:"column:status;index"`
	QuorumRequired        int       `gorm:"column:quorum_required"`
	QuorumAchieved        bool      `gorm:"column:quorum_achieved"`
	QuorumRecorded        bool      `gorm:"column:quorum_recorded"`
	ActiveVotingSessionID string    `gorm:"column:active_voting_session_id"`
	ControllerID          string    `gorm:"column:controller_id"`
	AutoProgression       bool      `gorm:"column:auto_progression"`
	ErrorState            bool      `gorm:"column:error_state"`
	ErrorMessage          string    `gorm:"column:error_message"`
	RecoveryAttempts      int       `gorm:"column:recovery_attempts"`
	Version               int64     `gorm:"column:version"`
	CreatedAt             time.Time `gorm:"column:created_at"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
}

func (workflowModel) TableName() string { return "workflow_instances" }

type transitionModel struct {
	TransitionID  string    `gorm:"column:transition_id;primaryKey"`
	InstanceID    string    `gorm:"column:instance_id;index"`
	FromStage     string    `gorm:"column:from_stage"`
	ToStage       string    `gorm:"column:to_stage"`
	TriggeredBy   string    `gorm:"column:triggered_by"`
	ConditionsMet bool      `gorm:"column:conditions_met"`
	Note          string    `gorm:"column:note"`
	OccurredAt    time.Time `gorm:"column:occurred_at;index"`
}

func (transitionModel) TableName() string { return "workflow_stage_transitions" }

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string { return "workflow_outbox" }

// Repository persists workflow instances with an optimistic version column.
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

func (r *Repository) CreateInstance(ctx context.Context, instance entities.WorkflowInstance) error {
	model, err := toWorkflowModel(instance)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetInstance(ctx context.Context, instanceID string) (entities.WorkflowInstance, error) {
	var model workflowModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.WorkflowInstance{}, domainerrors.ErrInstanceNotFound
	}
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	return toWorkflowEntity(model)
}

func (r *Repository) GetInstanceByMeeting(ctx context.Context, meetingID string) (entities.WorkflowInstance, bool, error) {
	var model workflowModel
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entities.WorkflowInstance{}, false, nil
	}
	if err != nil {
		return entities.WorkflowInstance{}, false, err
	}
	instance, convErr := toWorkflowEntity(model)
	if convErr != nil {
		return entities.WorkflowInstance{}, false, convErr
	}
	return instance, true, nil
}

// SaveInstance applies the update only where the stored version matches.
// Zero affected rows means either a concurrent writer won or the instance
// does not exist; a follow-up read disambiguates.
func (r *Repository) SaveInstance(ctx context.Context, instance entities.WorkflowInstance, expectedVersion int64) error {
	instance.Version = expectedVersion + 1
	model, err := toWorkflowModel(instance)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&workflowModel{}).
		Where("instance_id = ? AND version = ?", instance.InstanceID, expectedVersion).
		Updates(map[string]any{
			"stage_sequence":           model.StageSequence,
			"current_stage_index":      model.CurrentStageIndex,
			"status":                   model.Status,
			"quorum_required":          model.QuorumRequired,
			"quorum_achieved":          model.QuorumAchieved,
			"quorum_recorded":          model.QuorumRecorded,
			"active_voting_session_id": model.ActiveVotingSessionID,
			"controller_id":            model.ControllerID,
			"auto_progression":         model.AutoProgression,
			"error_state":              model.ErrorState,
			"error_message":            model.ErrorMessage,
			"recovery_attempts":        model.RecoveryAttempts,
			"version":                  model.Version,
			"updated_at":               model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&workflowModel{}).
			Where("instance_id = ?", instance.InstanceID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domainerrors.ErrInstanceNotFound
		}
		return domainerrors.ErrStaleInstance
	}
	return nil
}

func (r *Repository) AppendTransition(ctx context.Context, transition entities.StageTransition) error {
	model := transitionModel{
		TransitionID:  transition.TransitionID,
		InstanceID:    transition.InstanceID,
		FromStage:     transition.FromStage,
		ToStage:       transition.ToStage,
		TriggeredBy:   transition.TriggeredBy,
		ConditionsMet: transition.ConditionsMet,
		Note:          transition.Note,
		OccurredAt:    transition.OccurredAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *Repository) ListTransitions(ctx context.Context, instanceID string) ([]entities.StageTransition, error) {
	var models []transitionModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	transitions := make([]entities.StageTransition, 0, len(models))
	for _, model := range models {
		transitions = append(transitions, entities.StageTransition{
			TransitionID:  model.TransitionID,
			InstanceID:    model.InstanceID,
			FromStage:     model.FromStage,
			ToStage:       model.ToStage,
			TriggeredBy:   model.TriggeredBy,
			ConditionsMet: model.ConditionsMet,
			Note:          model.Note,
			OccurredAt:    model.OccurredAt.UTC(),
		})
	}
	return transitions, nil
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

func toWorkflowModel(instance entities.WorkflowInstance) (workflowModel, error) {
	sequence, err := json.Marshal(instance.StageSequence)
	if err != nil {
		return workflowModel{}, err
	}
	return workflowModel{
		InstanceID:            instance.InstanceID,
		MeetingID:             instance.MeetingID,
		StageSequence:         string(sequence),
		CurrentStageIndex:     instance.CurrentStageIndex,
		Status:                string(instance.Status),
		QuorumRequired:        instance.QuorumRequired,
		QuorumAchieved:        instance.QuorumAchieved,
		QuorumRecorded:        instance.QuorumRecorded,
		ActiveVotingSessionID: instance.ActiveVotingSessionID,
		ControllerID:          instance.ControllerID,
		AutoProgression:       instance.AutoProgression,
		ErrorState:            instance.ErrorState,
		ErrorMessage:          instance.ErrorMessage,
		RecoveryAttempts:      instance.RecoveryAttempts,
		Version:               instance.Version,
		CreatedAt:             instance.CreatedAt.UTC(),
		UpdatedAt:             instance.UpdatedAt.UTC(),
	}, nil
}

func toWorkflowEntity(model workflowModel) (entities.WorkflowInstance, error) {
	var sequence []string
	if strings.TrimSpace(model.StageSequence) != "" {
		if err := json.Unmarshal([]byte(model.StageSequence), &sequence); err != nil {
			return entities.WorkflowInstance{}, err
		}
	}
	return entities.WorkflowInstance{
		InstanceID:            model.InstanceID,
		MeetingID:             model.MeetingID,
		StageSequence:         sequence,
		CurrentStageIndex:     model.CurrentStageIndex,
		Status:                entities.InstanceStatus(model.Status),
		QuorumRequired:        model.QuorumRequired,
		QuorumAchieved:        model.QuorumAchieved,
		QuorumRecorded:        model.QuorumRecorded,
		ActiveVotingSessionID: model.ActiveVotingSessionID,
		ControllerID:          model.ControllerID,
		AutoProgression:       model.AutoProgression,
		ErrorState:            model.ErrorState,
		ErrorMessage:          model.ErrorMessage,
		RecoveryAttempts:      model.RecoveryAttempts,
		Version:               model.Version,
		CreatedAt:             model.CreatedAt.UTC(),
		UpdatedAt:             model.UpdatedAt.UTC(),
	}, nil
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
	_ ports.WorkflowRepository = (*Repository)(nil)
	_ ports.OutboxWriter       = (*Repository)(nil)
	_ ports.OutboxRepository   = (*Repository)(nil)
	_ ports.Clock              = SystemClock{}
	_ ports.IDGenerator        = UUIDGenerator{}
)
