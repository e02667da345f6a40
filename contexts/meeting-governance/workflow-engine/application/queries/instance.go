package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"boardroom/contexts/meeting-governance/workflow-engine/application"
	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

// InstanceUseCase serves read paths over workflow instances and their
// transition history.
type InstanceUseCase struct {
	Workflows ports.WorkflowRepository
	Logger    *slog.Logger
}

func (uc InstanceUseCase) GetInstance(ctx context.Context, instanceID string) (entities.WorkflowInstance, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return entities.WorkflowInstance{}, domainerrors.ErrInvalidWorkflowInput
	}
	return uc.Workflows.GetInstance(ctx, instanceID)
}

func (uc InstanceUseCase) GetInstanceByMeeting(ctx context.Context, meetingID string) (entities.WorkflowInstance, error) {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return entities.WorkflowInstance{}, domainerrors.ErrInvalidWorkflowInput
	}
	instance, found, err := uc.Workflows.GetInstanceByMeeting(ctx, meetingID)
	if err != nil {
		return entities.WorkflowInstance{}, err
	}
	if !found {
		return entities.WorkflowInstance{}, domainerrors.ErrInstanceNotFound
	}
	return instance, nil
}

// ListTransitions returns the full audit trail in chronological order.
func (uc InstanceUseCase) ListTransitions(ctx context.Context, instanceID string) ([]entities.StageTransition, error) {
	logger := application.ResolveLogger(uc.Logger)

	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, domainerrors.ErrInvalidWorkflowInput
	}
	if _, err := uc.Workflows.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	transitions, err := uc.Workflows.ListTransitions(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].OccurredAt.Before(transitions[j].OccurredAt)
	})

	logger.DebugContext(ctx, "transitions listed",
		slog.String("event", "workflow_transitions_listed"),
		slog.String("module", "workflow-engine"),
		slog.String("layer", "application"),
		slog.String("instance_id", instanceID),
		slog.Int("count", len(transitions)),
	)
	return transitions, nil
}
