package httpadapter

import (
	"context"
	"log/slog"

	"boardroom/contexts/meeting-governance/voting-session/application/commands"
	"boardroom/contexts/meeting-governance/voting-session/application/queries"
	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	httptransport "boardroom/contexts/meeting-governance/voting-session/transport/http"
)

type Handler struct {
	Sessions commands.SessionUseCase
	Results  queries.ResultsUseCase
	Logger   *slog.Logger
}

func (h Handler) OpenSessionHandler(ctx context.Context, req httptransport.OpenSessionRequest) (httptransport.SessionResponse, error) {
	items := make([]commands.OpenSessionItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, commands.OpenSessionItem{
			ResolutionID: item.ResolutionID,
			Title:        item.Title,
		})
	}
	session, sessionItems, err := h.Sessions.OpenSession(ctx, commands.OpenSessionCommand{
		MeetingID:            req.MeetingID,
		WorkflowInstanceID:   req.WorkflowInstanceID,
		Title:                req.Title,
		Items:                items,
		Anonymity:            entities.AnonymityLevel(req.Anonymity),
		QuorumRequired:       req.QuorumRequired,
		PassThresholdPercent: req.PassThresholdPercent,
		Round:                req.Round,
		Deadline:             req.Deadline,
		OpenedBy:             req.OpenedBy,
	})
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	return toSessionResponse(session, sessionItems), nil
}

func (h Handler) CastBallotHandler(ctx context.Context, sessionID string, idempotencyKey string, req httptransport.CastBallotRequest) (httptransport.CastBallotResponse, error) {
	result, err := h.Sessions.CastBallot(ctx, commands.CastBallotCommand{
		SessionID:      sessionID,
		ItemID:         req.ItemID,
		VoterID:        req.VoterID,
		Choice:         entities.BallotChoice(req.Choice),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.CastBallotResponse{}, err
	}
	return httptransport.CastBallotResponse{
		BallotID:    result.BallotID,
		OwnWeight:   result.OwnWeight,
		ProxyWeight: result.ProxyWeight,
		TotalWeight: result.OwnWeight + result.ProxyWeight,
		GrantIDs:    result.GrantIDs,
		Replayed:    result.Replayed,
	}, nil
}

func (h Handler) CloseSessionHandler(ctx context.Context, sessionID string, req httptransport.CloseSessionRequest) (httptransport.SessionResponse, error) {
	if _, err := h.Sessions.CloseSession(ctx, commands.CloseSessionCommand{
		SessionID: sessionID,
		ClosedBy:  req.ClosedBy,
	}); err != nil {
		return httptransport.SessionResponse{}, err
	}
	session, items, err := h.Results.Results(ctx, sessionID)
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	return toSessionResponse(session, items), nil
}

func (h Handler) CancelSessionHandler(ctx context.Context, sessionID string, req httptransport.CancelSessionRequest) error {
	return h.Sessions.CancelSession(ctx, commands.CancelSessionCommand{
		SessionID:   sessionID,
		CancelledBy: req.CancelledBy,
		Reason:      req.Reason,
	})
}

func (h Handler) ResultsHandler(ctx context.Context, sessionID string) (httptransport.SessionResponse, error) {
	session, items, err := h.Results.Results(ctx, sessionID)
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	return toSessionResponse(session, items), nil
}

func (h Handler) ListBallotsHandler(ctx context.Context, sessionID string) (httptransport.BallotListResponse, error) {
	views, err := h.Results.ListBallots(ctx, sessionID)
	if err != nil {
		return httptransport.BallotListResponse{}, err
	}
	resp := httptransport.BallotListResponse{
		SessionID: sessionID,
		Ballots:   make([]httptransport.BallotResponse, 0, len(views)),
	}
	for _, view := range views {
		resp.Ballots = append(resp.Ballots, httptransport.BallotResponse{
			BallotID:    view.BallotID,
			ItemID:      view.ItemID,
			VoterID:     view.VoterID,
			Choice:      string(view.Choice),
			TotalWeight: view.TotalWeight,
			Round:       view.Round,
		})
	}
	return resp, nil
}

func toSessionResponse(session entities.VotingSession, items []entities.SessionItem) httptransport.SessionResponse {
	resp := httptransport.SessionResponse{
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
		Items:                make([]httptransport.SessionItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, httptransport.SessionItemResponse{
			ItemID:        item.ItemID,
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
		})
	}
	return resp
}
