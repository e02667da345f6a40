package httpadapter

import (
	"context"
	"log/slog"

	"boardroom/contexts/meeting-governance/resolution-registry/application/commands"
	"boardroom/contexts/meeting-governance/resolution-registry/application/queries"
	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	httptransport "boardroom/contexts/meeting-governance/resolution-registry/transport/http"
)

type Handler struct {
	Registry commands.RegistryUseCase
	Queries  queries.RegistryUseCase
	Logger   *slog.Logger
}

func (h Handler) ProposeHandler(ctx context.Context, req httptransport.ProposeResolutionRequest) (httptransport.ResolutionResponse, error) {
	resolution, err := h.Registry.Propose(ctx, commands.ProposeCommand{
		MeetingID:  req.MeetingID,
		Title:      req.Title,
		Text:       req.Text,
		Category:   req.Category,
		ProposedBy: req.ProposedBy,
		SecondedBy: req.SecondedBy,
	})
	if err != nil {
		return httptransport.ResolutionResponse{}, err
	}
	return toResolutionResponse(resolution), nil
}

func (h Handler) GetResolutionHandler(ctx context.Context, resolutionID string) (httptransport.ResolutionDetailResponse, error) {
	resolution, err := h.Queries.GetResolution(ctx, resolutionID)
	if err != nil {
		return httptransport.ResolutionDetailResponse{}, err
	}
	outcomes, err := h.Queries.History(ctx, resolutionID)
	if err != nil {
		return httptransport.ResolutionDetailResponse{}, err
	}
	resp := httptransport.ResolutionDetailResponse{
		Resolution: toResolutionResponse(resolution),
		Outcomes:   make([]httptransport.RoundOutcomeResponse, 0, len(outcomes)),
	}
	for _, outcome := range outcomes {
		resp.Outcomes = append(resp.Outcomes, httptransport.RoundOutcomeResponse{
			Round:         outcome.Round,
			SessionID:     outcome.SessionID,
			ForWeight:     outcome.ForWeight,
			AgainstWeight: outcome.AgainstWeight,
			AbstainWeight: outcome.AbstainWeight,
			Passed:        outcome.Passed,
			RecordedAt:    outcome.RecordedAt,
		})
	}
	return resp, nil
}

func (h Handler) ListByMeetingHandler(ctx context.Context, meetingID string) (httptransport.ResolutionListResponse, error) {
	resolutions, err := h.Queries.ListByMeeting(ctx, meetingID)
	if err != nil {
		return httptransport.ResolutionListResponse{}, err
	}
	resp := httptransport.ResolutionListResponse{
		MeetingID:   meetingID,
		Resolutions: make([]httptransport.ResolutionResponse, 0, len(resolutions)),
	}
	for _, resolution := range resolutions {
		resp.Resolutions = append(resp.Resolutions, toResolutionResponse(resolution))
	}
	return resp, nil
}

func (h Handler) WithdrawHandler(ctx context.Context, resolutionID string, req httptransport.WithdrawResolutionRequest) (httptransport.ResolutionResponse, error) {
	resolution, err := h.Registry.Withdraw(ctx, resolutionID, req.RequestedBy)
	if err != nil {
		return httptransport.ResolutionResponse{}, err
	}
	return toResolutionResponse(resolution), nil
}

func (h Handler) TableHandler(ctx context.Context, resolutionID string, req httptransport.TableResolutionRequest) (httptransport.ResolutionResponse, error) {
	resolution, err := h.Registry.Table(ctx, resolutionID, req.RequestedBy)
	if err != nil {
		return httptransport.ResolutionResponse{}, err
	}
	return toResolutionResponse(resolution), nil
}

func (h Handler) SupersedeHandler(ctx context.Context, resolutionID string, req httptransport.SupersedeResolutionRequest) (httptransport.ResolutionResponse, error) {
	resolution, err := h.Registry.Supersede(ctx, resolutionID, req.SupersededByID)
	if err != nil {
		return httptransport.ResolutionResponse{}, err
	}
	return toResolutionResponse(resolution), nil
}

func toResolutionResponse(resolution entities.Resolution) httptransport.ResolutionResponse {
	return httptransport.ResolutionResponse{
		ResolutionID: resolution.ResolutionID,
		MeetingID:    resolution.MeetingID,
		Title:        resolution.Title,
		Text:         resolution.Text,
		Category:     resolution.Category,
		ProposedBy:   resolution.ProposedBy,
		SecondedBy:   resolution.SecondedBy,
		Status:       string(resolution.Status),
		SupersededBy: resolution.SupersededBy,
	}
}
