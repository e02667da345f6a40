package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/workflow-engine/application"
	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

// maxRecoveryAttempts bounds Recover per failed instance.
const maxRecoveryAttempts = 1

type OpenMeetingCommand struct {
	MeetingID       string
	StageSequence   []string
	QuorumRequired  int
	ControllerID    string
	AutoProgression bool
}

type AdvanceCommand struct {
	InstanceID  string
	RequestedBy string
	// ExpectedStageIndex guards against double submission from a stale
	// read of the meeting screen. Negative means "advance from wherever
	// the instance currently is".
	ExpectedStageIndex int
}

type RecordQuorumCommand struct {
	InstanceID      string
	AttendanceCount int
	RecordedBy      string
}

type FailCommand struct {
	InstanceID  string
	Reason      string
	RequestedBy string
}

// EngineUseCase owns every state change of a workflow instance. All writes
// go through the repository's versioned save, so two racing callers cannot
// both move the same instance.
type EngineUseCase struct {
	Workflows ports.WorkflowRepository
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (uc EngineUseCase) OpenMeeting(ctx context.Context, cmd OpenMeetingCommand) (entities.WorkflowInstance, error) {
	logger := application.ResolveLogger(uc.Logger)

	meetingID := strings.TrimSpace(cmd.MeetingID)
	controllerID := strings.TrimSpace(cmd.ControllerID)
	if meetingID == "" || controllerID == "" || cmd.QuorumRequired < 0 {
		return entities.WorkflowInstance{}, domainerrors.ErrInvalidWorkflowInput
	}

	sequence := make([]string, 0, len(cmd.StageSequence))
	for _, stage := range cmd.StageSequence {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			return entities.WorkflowInstance{}, domainerrors.ErrInvalidWorkflowInput
		}
		sequence = append(sequence, stage)
	}
	if len(sequence) == 0 {
		sequence = entities.DefaultStageSequence()
	}

	if existing, found, err := uc.Workflows.GetInstanceByMeeting(ctx, meetingID); err != nil {
		return entities.WorkflowInstance{}, err
	} else if found {
		logger.InfoContext(ctx, "meeting already open",
			slog.String("event", "workflow_open_replayed"),
			slog.String("module", "workflow-engine"),
			slog.String("layer", "application"),
			slog.String("meeting_id", meetingID),
		)
		return existing, nil
	}

	instanceID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	now := uc.Clock.Now().UTC()

	instance := entities.WorkflowInstance{
		InstanceID:        instanceID,
		MeetingID:         meetingID,
		StageSequence:     sequence,
		CurrentStageIndex: 0,
		Status:            entities.InstanceStatusInProgress,
		QuorumRequired:    cmd.QuorumRequired,
		ControllerID:      controllerID,
		AutoProgression:   cmd.AutoProgression,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uc.Workflows.CreateInstance(ctx, instance); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.appendTransition(ctx, instance, "", sequence[0], controllerID, true, "meeting opened"); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.emit(ctx, "workflow.meeting_opened", instance, now, map[string]any{
		"instance_id":    instance.InstanceID,
		"meeting_id":     instance.MeetingID,
		"stage_sequence": instance.StageSequence,
		"controller_id":  instance.ControllerID,
	}); err != nil {
		return entities.WorkflowInstance{}, err
	}

	logger.InfoContext(ctx, "meeting workflow opened",
		slog.String("event", "workflow_opened"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instance.InstanceID),
		slog.String("meeting_id", instance.MeetingID),
		slog.Int("stage_count", len(sequence)),
	)
	return instance, nil
}

// Advance moves the instance to the next stage in its sequence. Advancing
// from the final stage completes the meeting. Exactly one of two concurrent
// advances from the same stage index succeeds; the loser observes
// ErrStaleInstance and must re-read.
func (uc EngineUseCase) Advance(ctx context.Context, cmd AdvanceCommand) (entities.StageTransition, error) {
	logger := application.ResolveLogger(uc.Logger)

	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(cmd.InstanceID))
	if err != nil {
		return entities.StageTransition{}, err
	}
	if cmd.ExpectedStageIndex >= 0 && cmd.ExpectedStageIndex != instance.CurrentStageIndex {
		return entities.StageTransition{}, domainerrors.ErrStaleInstance
	}
	if err := uc.authorize(instance, cmd.RequestedBy); err != nil {
		return entities.StageTransition{}, err
	}
	if instance.Terminal() {
		return entities.StageTransition{}, domainerrors.ErrTerminalState
	}
	if instance.Status == entities.InstanceStatusFailed {
		return entities.StageTransition{}, domainerrors.ErrNotFailed
	}
	fromStage := instance.CurrentStage()
	if fromStage == entities.StageQuorumCheck && !instance.QuorumAchieved {
		return entities.StageTransition{}, domainerrors.ErrQuorumNotMet
	}

	now := uc.Clock.Now().UTC()
	expected := instance.Version

	completing := instance.AtFinalStage()
	var toStage string
	if completing {
		toStage = fromStage
	} else {
		toStage = instance.StageSequence[instance.CurrentStageIndex+1]
	}
	// An attached session pins the meeting to voting territory: moving
	// between voting stages is allowed while it runs, but leaving for a
	// non-voting stage (or completing) requires the session to end first.
	if instance.ActiveVotingSessionID != "" && (completing || !entities.IsVotingStage(toStage)) {
		return entities.StageTransition{}, domainerrors.ErrStageLocked
	}
	if completing {
		instance.Status = entities.InstanceStatusCompleted
	} else {
		if entities.IsVotingStage(toStage) && !instance.QuorumRecorded {
			return entities.StageTransition{}, domainerrors.ErrQuorumNotRecorded
		}
		instance.CurrentStageIndex++
	}
	instance.UpdatedAt = now

	if err := uc.Workflows.SaveInstance(ctx, instance, expected); err != nil {
		return entities.StageTransition{}, err
	}

	note := "advanced"
	if instance.Status == entities.InstanceStatusCompleted {
		note = "meeting completed"
	}
	if err := uc.appendTransition(ctx, instance, fromStage, toStage, cmd.RequestedBy, true, note); err != nil {
		return entities.StageTransition{}, err
	}
	if err := uc.emit(ctx, "workflow.stage_advanced", instance, now, map[string]any{
		"instance_id": instance.InstanceID,
		"meeting_id":  instance.MeetingID,
		"from_stage":  fromStage,
		"to_stage":    toStage,
		"stage_index": instance.CurrentStageIndex,
		"status":      string(instance.Status),
	}); err != nil {
		return entities.StageTransition{}, err
	}

	logger.InfoContext(ctx, "workflow stage advanced",
		slog.String("event", "workflow_advanced"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instance.InstanceID),
		slog.String("from_stage", fromStage),
		slog.String("to_stage", toStage),
	)
	return entities.StageTransition{
		InstanceID:    instance.InstanceID,
		FromStage:     fromStage,
		ToStage:       toStage,
		TriggeredBy:   cmd.RequestedBy,
		ConditionsMet: true,
		Note:          note,
		OccurredAt:    now,
	}, nil
}

// RecordQuorum stores the attendance result against the instance. It is
// legal in any non-terminal stage and must happen before a voting stage
// is entered.
func (uc EngineUseCase) RecordQuorum(ctx context.Context, cmd RecordQuorumCommand) (entities.WorkflowInstance, error) {
	logger := application.ResolveLogger(uc.Logger)

	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(cmd.InstanceID))
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	if instance.Terminal() {
		return entities.WorkflowInstance{}, domainerrors.ErrTerminalState
	}
	if cmd.AttendanceCount < 0 {
		return entities.WorkflowInstance{}, domainerrors.ErrInvalidWorkflowInput
	}

	now := uc.Clock.Now().UTC()
	expected := instance.Version
	instance.QuorumRecorded = true
	instance.QuorumAchieved = cmd.AttendanceCount >= instance.QuorumRequired
	instance.UpdatedAt = now

	if err := uc.Workflows.SaveInstance(ctx, instance, expected); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.emit(ctx, "workflow.quorum_recorded", instance, now, map[string]any{
		"instance_id":      instance.InstanceID,
		"meeting_id":       instance.MeetingID,
		"attendance_count": cmd.AttendanceCount,
		"quorum_required":  instance.QuorumRequired,
		"quorum_achieved":  instance.QuorumAchieved,
	}); err != nil {
		return entities.WorkflowInstance{}, err
	}

	logger.InfoContext(ctx, "quorum recorded",
		slog.String("event", "workflow_quorum_recorded"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instance.InstanceID),
		slog.Int("attendance_count", cmd.AttendanceCount),
		slog.Bool("quorum_achieved", instance.QuorumAchieved),
	)
	return instance, nil
}

// Fail moves a non-terminal instance into the failed error state. The stage
// cursor is kept so a later Recover resumes from the same stage.
func (uc EngineUseCase) Fail(ctx context.Context, cmd FailCommand) (entities.WorkflowInstance, error) {
	logger := application.ResolveLogger(uc.Logger)

	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(cmd.InstanceID))
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	if instance.Terminal() {
		return entities.WorkflowInstance{}, domainerrors.ErrTerminalState
	}
	if instance.Status == entities.InstanceStatusFailed {
		return instance, nil
	}

	now := uc.Clock.Now().UTC()
	expected := instance.Version
	instance.Status = entities.InstanceStatusFailed
	instance.ErrorState = true
	instance.ErrorMessage = strings.TrimSpace(cmd.Reason)
	instance.UpdatedAt = now

	if err := uc.Workflows.SaveInstance(ctx, instance, expected); err != nil {
		return entities.WorkflowInstance{}, err
	}
	stage := instance.CurrentStage()
	note := "failed"
	if instance.ErrorMessage != "" {
		note = fmt.Sprintf("failed: %s", instance.ErrorMessage)
	}
	if err := uc.appendTransition(ctx, instance, stage, stage, cmd.RequestedBy, false, note); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.emit(ctx, "workflow.failed", instance, now, map[string]any{
		"instance_id": instance.InstanceID,
		"meeting_id":  instance.MeetingID,
		"stage":       stage,
		"reason":      instance.ErrorMessage,
	}); err != nil {
		return entities.WorkflowInstance{}, err
	}

	logger.WarnContext(ctx, "workflow failed",
		slog.String("event", "workflow_failed"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instance.InstanceID),
		slog.String("stage", stage),
		slog.String("reason", instance.ErrorMessage),
	)
	return instance, nil
}

// Recover returns a failed instance to in_progress at the stage it failed
// in. A single recovery is allowed per instance; a second failure is final.
func (uc EngineUseCase) Recover(ctx context.Context, instanceID string, requestedBy string) (entities.WorkflowInstance, error) {
	logger := application.ResolveLogger(uc.Logger)

	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(instanceID))
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	if instance.Status != entities.InstanceStatusFailed {
		return entities.WorkflowInstance{}, domainerrors.ErrNotFailed
	}
	if instance.RecoveryAttempts >= maxRecoveryAttempts {
		return entities.WorkflowInstance{}, domainerrors.ErrRecoveryExhausted
	}

	now := uc.Clock.Now().UTC()
	expected := instance.Version
	instance.Status = entities.InstanceStatusInProgress
	instance.ErrorState = false
	instance.ErrorMessage = ""
	instance.RecoveryAttempts++
	instance.UpdatedAt = now

	if err := uc.Workflows.SaveInstance(ctx, instance, expected); err != nil {
		return entities.WorkflowInstance{}, err
	}
	stage := instance.CurrentStage()
	if err := uc.appendTransition(ctx, instance, stage, stage, requestedBy, true, "recovered"); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.emit(ctx, "workflow.recovered", instance, now, map[string]any{
		"instance_id":       instance.InstanceID,
		"meeting_id":        instance.MeetingID,
		"stage":             stage,
		"recovery_attempts": instance.RecoveryAttempts,
	}); err != nil {
		return entities.WorkflowInstance{}, err
	}

	logger.InfoContext(ctx, "workflow recovered",
		slog.String("event", "workflow_recovered"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instance.InstanceID),
		slog.String("stage", stage),
	)
	return instance, nil
}

// Cancel abandons a non-terminal meeting. Cancellation is final.
func (uc EngineUseCase) Cancel(ctx context.Context, instanceID string, requestedBy string) (entities.WorkflowInstance, error) {
	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(instanceID))
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	if err := uc.authorize(instance, requestedBy); err != nil {
		return entities.WorkflowInstance{}, err
	}
	if instance.Terminal() {
		return entities.WorkflowInstance{}, domainerrors.ErrTerminalState
	}
	if instance.ActiveVotingSessionID != "" {
		return entities.WorkflowInstance{}, domainerrors.ErrStageLocked
	}

	now := uc.Clock.Now().UTC()
	expected := instance.Version
	instance.Status = entities.InstanceStatusCancelled
	instance.UpdatedAt = now

	if err := uc.Workflows.SaveInstance(ctx, instance, expected); err != nil {
		return entities.WorkflowInstance{}, err
	}
	stage := instance.CurrentStage()
	if err := uc.appendTransition(ctx, instance, stage, stage, requestedBy, true, "meeting cancelled"); err != nil {
		return entities.WorkflowInstance{}, err
	}
	return instance, uc.emit(ctx, "workflow.cancelled", instance, now, map[string]any{
		"instance_id": instance.InstanceID,
		"meeting_id":  instance.MeetingID,
		"stage":       stage,
	})
}

// BeginVoting attaches an open voting session to the instance. The current
// stage must be a voting stage with recorded, achieved quorum, and only one
// session may be attached at a time. While attached the instance reports
// waiting and refuses stage changes.
func (uc EngineUseCase) BeginVoting(ctx context.Context, instanceID string, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domainerrors.ErrInvalidWorkflowInput
	}
	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(instanceID))
	if err != nil {
		return err
	}
	if instance.Terminal() || instance.Status == entities.InstanceStatusFailed {
		return domainerrors.ErrTerminalState
	}
	if !entities.IsVotingStage(instance.CurrentStage()) {
		return domainerrors.ErrInvalidStage
	}
	if !instance.QuorumRecorded || !instance.QuorumAchieved {
		return domainerrors.ErrQuorumNotMet
	}
	if instance.ActiveVotingSessionID != "" {
		if instance.ActiveVotingSessionID == sessionID {
			return nil
		}
		return domainerrors.ErrStageLocked
	}

	expected := instance.Version
	instance.ActiveVotingSessionID = sessionID
	instance.Status = entities.InstanceStatusWaiting
	instance.UpdatedAt = uc.Clock.Now().UTC()
	return uc.Workflows.SaveInstance(ctx, instance, expected)
}

// EndVoting detaches the session and unlocks the stage. Detaching a session
// that is no longer attached is a no-op so close and cancel stay re-entrant.
func (uc EngineUseCase) EndVoting(ctx context.Context, instanceID string, sessionID string) error {
	instance, err := uc.Workflows.GetInstance(ctx, strings.TrimSpace(instanceID))
	if err != nil {
		return err
	}
	if instance.ActiveVotingSessionID == "" {
		return nil
	}
	if instance.ActiveVotingSessionID != strings.TrimSpace(sessionID) {
		return domainerrors.ErrSessionMismatch
	}

	expected := instance.Version
	instance.ActiveVotingSessionID = ""
	if instance.Status == entities.InstanceStatusWaiting {
		instance.Status = entities.InstanceStatusInProgress
	}
	instance.UpdatedAt = uc.Clock.Now().UTC()
	return uc.Workflows.SaveInstance(ctx, instance, expected)
}

func (uc EngineUseCase) authorize(instance entities.WorkflowInstance, requestedBy string) error {
	if instance.AutoProgression {
		return nil
	}
	if strings.TrimSpace(requestedBy) != instance.ControllerID {
		return domainerrors.ErrNotController
	}
	return nil
}

func (uc EngineUseCase) appendTransition(ctx context.Context, instance entities.WorkflowInstance, fromStage, toStage, triggeredBy string, conditionsMet bool, note string) error {
	transitionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	return uc.Workflows.AppendTransition(ctx, entities.StageTransition{
		TransitionID:  transitionID,
		InstanceID:    instance.InstanceID,
		FromStage:     fromStage,
		ToStage:       toStage,
		TriggeredBy:   strings.TrimSpace(triggeredBy),
		ConditionsMet: conditionsMet,
		Note:          note,
		OccurredAt:    uc.Clock.Now().UTC(),
	})
}

func (uc EngineUseCase) emit(ctx context.Context, eventType string, instance entities.WorkflowInstance, occurredAt time.Time, data map[string]any) error {
	if uc.Outbox == nil {
		return nil
	}
	envelope, err := newWorkflowEnvelope(ctx, uc.IDGen, eventType, instance.MeetingID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}
