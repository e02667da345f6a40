package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/resolution-registry/application"
	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	"boardroom/contexts/meeting-governance/resolution-registry/ports"
)

const sourceService = "resolution-registry"

type ProposeCommand struct {
	MeetingID  string
	Title      string
	Text       string
	Category   string
	ProposedBy string
	SecondedBy string
}

type RecordOutcomeCommand struct {
	ResolutionID  string
	Round         int
	SessionID     string
	ForWeight     float64
	AgainstWeight float64
	AbstainWeight float64
	Passed        bool
}

// RegistryUseCase owns the lifecycle of formal resolutions.
type RegistryUseCase struct {
	Resolutions ports.ResolutionRepository
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

// Propose registers a seconded motion. A motion without a second stays out
// of the registry; it cannot reach a vote.
func (uc RegistryUseCase) Propose(ctx context.Context, cmd ProposeCommand) (entities.Resolution, error) {
	logger := application.ResolveLogger(uc.Logger)

	meetingID := strings.TrimSpace(cmd.MeetingID)
	title := strings.TrimSpace(cmd.Title)
	proposedBy := strings.TrimSpace(cmd.ProposedBy)
	secondedBy := strings.TrimSpace(cmd.SecondedBy)
	if meetingID == "" || title == "" || proposedBy == "" {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}
	if secondedBy == "" {
		return entities.Resolution{}, domainerrors.ErrSecondRequired
	}
	if secondedBy == proposedBy {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}

	resolutionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Resolution{}, err
	}
	now := uc.Clock.Now().UTC()
	resolution := entities.Resolution{
		ResolutionID: resolutionID,
		MeetingID:    meetingID,
		Title:        title,
		Text:         strings.TrimSpace(cmd.Text),
		Category:     strings.TrimSpace(cmd.Category),
		ProposedBy:   proposedBy,
		SecondedBy:   secondedBy,
		Status:       entities.ResolutionStatusProposed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.Resolutions.CreateResolution(ctx, resolution); err != nil {
		return entities.Resolution{}, err
	}
	if err := uc.emit(ctx, "resolution.proposed", meetingID, now, map[string]any{
		"resolution_id": resolution.ResolutionID,
		"meeting_id":    resolution.MeetingID,
		"title":         resolution.Title,
		"proposed_by":   resolution.ProposedBy,
		"seconded_by":   resolution.SecondedBy,
	}); err != nil {
		return entities.Resolution{}, err
	}

	logger.InfoContext(ctx, "resolution proposed",
		slog.String("event", "resolution_proposed"),
		slog.String("module", "resolution-registry"),
		slog.String("layer", "application"),
		slog.String("resolution_id", resolution.ResolutionID),
		slog.String("meeting_id", resolution.MeetingID),
	)
	return resolution, nil
}

// RecordOutcome stores the result of one voting round. The first recording
// for a round wins and settles the resolution as passed or rejected;
// replays and duplicates return ErrOutcomeAlreadyRecorded.
func (uc RegistryUseCase) RecordOutcome(ctx context.Context, cmd RecordOutcomeCommand) (entities.Resolution, error) {
	logger := application.ResolveLogger(uc.Logger)

	resolutionID := strings.TrimSpace(cmd.ResolutionID)
	if resolutionID == "" || cmd.Round < 1 {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}
	resolution, err := uc.Resolutions.GetResolution(ctx, resolutionID)
	if err != nil {
		return entities.Resolution{}, err
	}
	if resolution.Status.Settled() {
		return entities.Resolution{}, domainerrors.ErrResolutionSettled
	}

	now := uc.Clock.Now().UTC()
	status := entities.ResolutionStatusRejected
	if cmd.Passed {
		status = entities.ResolutionStatusPassed
	}
	outcome := entities.RoundOutcome{
		ResolutionID:  resolutionID,
		Round:         cmd.Round,
		SessionID:     strings.TrimSpace(cmd.SessionID),
		ForWeight:     cmd.ForWeight,
		AgainstWeight: cmd.AgainstWeight,
		AbstainWeight: cmd.AbstainWeight,
		Passed:        cmd.Passed,
		RecordedAt:    now,
	}
	if err := uc.Resolutions.RecordRoundOutcome(ctx, outcome, status); err != nil {
		return entities.Resolution{}, err
	}
	resolution.Status = status
	resolution.UpdatedAt = now

	if err := uc.emit(ctx, "resolution.outcome_recorded", resolution.MeetingID, now, map[string]any{
		"resolution_id":  resolutionID,
		"round":          cmd.Round,
		"session_id":     outcome.SessionID,
		"for_weight":     cmd.ForWeight,
		"against_weight": cmd.AgainstWeight,
		"abstain_weight": cmd.AbstainWeight,
		"passed":         cmd.Passed,
	}); err != nil {
		return entities.Resolution{}, err
	}

	logger.InfoContext(ctx, "resolution outcome recorded",
		slog.String("event", "resolution_outcome_recorded"),
		slog.String("module", "resolution-registry"),
		slog.String("layer", "application"),
		slog.String("resolution_id", resolutionID),
		slog.Int("round", cmd.Round),
		slog.Bool("passed", cmd.Passed),
	)
	return resolution, nil
}

// Withdraw removes a pending resolution at the proposer's request.
func (uc RegistryUseCase) Withdraw(ctx context.Context, resolutionID string, requestedBy string) (entities.Resolution, error) {
	return uc.settle(ctx, resolutionID, requestedBy, entities.ResolutionStatusWithdrawn, "resolution.withdrawn")
}

// Table defers a pending resolution to a later meeting. Tabled resolutions
// stay open: they can be re-proposed, withdrawn, or voted later.
func (uc RegistryUseCase) Table(ctx context.Context, resolutionID string, requestedBy string) (entities.Resolution, error) {
	return uc.settle(ctx, resolutionID, requestedBy, entities.ResolutionStatusTabled, "resolution.tabled")
}

// Supersede marks an older resolution as replaced by a newer one.
func (uc RegistryUseCase) Supersede(ctx context.Context, resolutionID string, supersededByID string) (entities.Resolution, error) {
	resolutionID = strings.TrimSpace(resolutionID)
	supersededByID = strings.TrimSpace(supersededByID)
	if resolutionID == "" || supersededByID == "" {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}
	if resolutionID == supersededByID {
		return entities.Resolution{}, domainerrors.ErrSelfSupersedeForbidden
	}
	if _, err := uc.Resolutions.GetResolution(ctx, supersededByID); err != nil {
		return entities.Resolution{}, err
	}

	resolution, err := uc.Resolutions.GetResolution(ctx, resolutionID)
	if err != nil {
		return entities.Resolution{}, err
	}
	if resolution.Status.Settled() {
		return entities.Resolution{}, domainerrors.ErrResolutionSettled
	}

	now := uc.Clock.Now().UTC()
	resolution.Status = entities.ResolutionStatusAmended
	resolution.SupersededBy = supersededByID
	resolution.UpdatedAt = now
	if err := uc.Resolutions.UpdateResolution(ctx, resolution); err != nil {
		return entities.Resolution{}, err
	}
	return resolution, uc.emit(ctx, "resolution.superseded", resolution.MeetingID, now, map[string]any{
		"resolution_id": resolution.ResolutionID,
		"superseded_by": supersededByID,
	})
}

func (uc RegistryUseCase) settle(ctx context.Context, resolutionID string, requestedBy string, status entities.ResolutionStatus, eventType string) (entities.Resolution, error) {
	resolutionID = strings.TrimSpace(resolutionID)
	if resolutionID == "" {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}
	resolution, err := uc.Resolutions.GetResolution(ctx, resolutionID)
	if err != nil {
		return entities.Resolution{}, err
	}
	if resolution.Status.Settled() {
		return entities.Resolution{}, domainerrors.ErrResolutionSettled
	}

	now := uc.Clock.Now().UTC()
	resolution.Status = status
	resolution.UpdatedAt = now
	if err := uc.Resolutions.UpdateResolution(ctx, resolution); err != nil {
		return entities.Resolution{}, err
	}
	return resolution, uc.emit(ctx, eventType, resolution.MeetingID, now, map[string]any{
		"resolution_id": resolution.ResolutionID,
		"requested_by":  strings.TrimSpace(requestedBy),
		"status":        string(status),
	})
}

func (uc RegistryUseCase) emit(ctx context.Context, eventType string, meetingID string, occurredAt time.Time, data map[string]any) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, ports.EventEnvelope{
		EventID:       eventID,
		EventType:     eventType,
		SourceService: sourceService,
		OccurredAt:    occurredAt.UTC(),
		SchemaVersion: 1,
		PartitionKey:  meetingID,
		Data:          payload,
	})
}
