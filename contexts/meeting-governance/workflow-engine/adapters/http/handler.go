package httpadapter

import (
	"context"
	"log/slog"

	"boardroom/contexts/meeting-governance/workflow-engine/application/commands"
	"boardroom/contexts/meeting-governance/workflow-engine/application/queries"
	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	httptransport "boardroom/contexts/meeting-governance/workflow-engine/transport/http"
)

type Handler struct {
	Engine    commands.EngineUseCase
	Instances queries.InstanceUseCase
	Logger    *slog.Logger
}

func (h Handler) OpenMeetingHandler(ctx context.Context, req httptransport.OpenMeetingRequest) (httptransport.InstanceResponse, error) {
	instance, err := h.Engine.OpenMeeting(ctx, commands.OpenMeetingCommand{
		MeetingID:       req.MeetingID,
		StageSequence:   req.StageSequence,
		QuorumRequired:  req.QuorumRequired,
		ControllerID:    req.ControllerID,
		AutoProgression: req.AutoProgression,
	})
	if err != nil {
		return httptransport.InstanceResponse{}, err
	}
	return toInstanceResponse(instance), nil
}

func (h Handler) AdvanceHandler(ctx context.Context, instanceID string, req httptransport.AdvanceRequest) (httptransport.TransitionResponse, error) {
	cmd := commands.AdvanceCommand{
		InstanceID:         instanceID,
		RequestedBy:        req.RequestedBy,
		ExpectedStageIndex: -1,
	}
	if req.ExpectedStageIndex != nil {
		cmd.ExpectedStageIndex = *req.ExpectedStageIndex
	}
	transition, err := h.Engine.Advance(ctx, cmd)
	if err != nil {
		return httptransport.TransitionResponse{}, err
	}
	return toTransitionResponse(transition), nil
}

func (h Handler) RecordQuorumHandler(ctx context.Context, instanceID string, req httptransport.RecordQuorumRequest) (httptransport.InstanceResponse, error) {
	instance, err := h.Engine.RecordQuorum(ctx, commands.RecordQuorumCommand{
		InstanceID:      instanceID,
		AttendanceCount: req.AttendanceCount,
		RecordedBy:      req.RecordedBy,
	})
	if err != nil {
		return httptransport.InstanceResponse{}, err
	}
	return toInstanceResponse(instance), nil
}

func (h Handler) FailHandler(ctx context.Context, instanceID string, req httptransport.FailRequest) (httptransport.InstanceResponse, error) {
	instance, err := h.Engine.Fail(ctx, commands.FailCommand{
		InstanceID:  instanceID,
		Reason:      req.Reason,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return httptransport.InstanceResponse{}, err
	}
	return toInstanceResponse(instance), nil
}

func (h Handler) RecoverHandler(ctx context.Context, instanceID string, req httptransport.RecoverRequest) (httptransport.InstanceResponse, error) {
	instance, err := h.Engine.Recover(ctx, instanceID, req.RequestedBy)
	if err != nil {
		return httptransport.InstanceResponse{}, err
	}
	return toInstanceResponse(instance), nil
}

func (h Handler) GetInstanceHandler(ctx context.Context, instanceID string) (httptransport.InstanceResponse, error) {
	instance, err := h.Instances.GetInstance(ctx, instanceID)
	if err != nil {
		return httptransport.InstanceResponse{}, err
	}
	return toInstanceResponse(instance), nil
}

func (h Handler) ListTransitionsHandler(ctx context.Context, instanceID string) (httptransport.TransitionListResponse, error) {
	transitions, err := h.Instances.ListTransitions(ctx, instanceID)
	if err != nil {
		return httptransport.TransitionListResponse{}, err
	}
	resp := httptransport.TransitionListResponse{
		InstanceID:  instanceID,
		Transitions: make([]httptransport.TransitionResponse, 0, len(transitions)),
	}
	for _, transition := range transitions {
		resp.Transitions = append(resp.Transitions, toTransitionResponse(transition))
	}
	return resp, nil
}

func toInstanceResponse(instance entities.WorkflowInstance) httptransport.InstanceResponse {
	return httptransport.InstanceResponse{
		InstanceID:            instance.InstanceID,
		MeetingID:             instance.MeetingID,
		StageSequence:         instance.StageSequence,
		CurrentStage:          instance.CurrentStage(),
		CurrentStageIndex:     instance.CurrentStageIndex,
		Status:                string(instance.Status),
		QuorumRequired:        instance.QuorumRequired,
		QuorumAchieved:        instance.QuorumAchieved,
		ActiveVotingSessionID: instance.ActiveVotingSessionID,
		ControllerID:          instance.ControllerID,
		RecoveryAttempts:      instance.RecoveryAttempts,
	}
}

func toTransitionResponse(transition entities.StageTransition) httptransport.TransitionResponse {
	return httptransport.TransitionResponse{
		FromStage:     transition.FromStage,
		ToStage:       transition.ToStage,
		TriggeredBy:   transition.TriggeredBy,
		ConditionsMet: transition.ConditionsMet,
		Note:          transition.Note,
		OccurredAt:    transition.OccurredAt,
	}
}
