package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/application/commands"
	"boardroom/contexts/meeting-governance/proxy-graph/application/queries"
	httptransport "boardroom/contexts/meeting-governance/proxy-graph/transport/http"
)

type Handler struct {
	Grants  commands.GrantUseCase
	Resolve queries.ResolveUseCase
	Logger  *slog.Logger
}

func (h Handler) GrantProxyHandler(
	ctx context.Context,
	idempotencyKey string,
	req httptransport.GrantProxyRequest,
) (httptransport.GrantResponse, error) {
	cmd := commands.GrantProxyCommand{
		MeetingID:       req.MeetingID,
		GrantorID:       req.GrantorID,
		HolderID:        req.HolderID,
		Scope:           req.Scope,
		VotingWeight:    req.VotingWeight,
		MaxVotesAllowed: req.MaxVotesAllowed,
		EffectiveUntil:  req.EffectiveUntil,
		CanSubDelegate:  req.CanSubDelegate,
		ParentGrantID:   req.ParentGrantID,
		IdempotencyKey:  idempotencyKey,
	}
	if req.EffectiveFrom != nil {
		cmd.EffectiveFrom = *req.EffectiveFrom
	}
	result, err := h.Grants.Grant(ctx, cmd)
	if err != nil {
		return httptransport.GrantResponse{}, err
	}
	resp := httptransport.GrantResponse{
		GrantID:        result.Grant.GrantID,
		MeetingID:      result.Grant.MeetingID,
		GrantorID:      result.Grant.GrantorID,
		HolderID:       result.Grant.HolderID,
		Status:         string(result.Grant.Status),
		VotingWeight:   result.Grant.VotingWeight,
		ChainDepth:     result.Grant.ChainDepth,
		EffectiveUntil: result.Grant.EffectiveUntil,
		Replayed:       result.Replayed,
	}
	if result.Superseded != nil {
		resp.SupersededID = result.Superseded.GrantID
	}
	return resp, nil
}

func (h Handler) RevokeProxyHandler(
	ctx context.Context,
	grantID string,
	revokedBy string,
	idempotencyKey string,
	req httptransport.RevokeProxyRequest,
) error {
	return h.Grants.Revoke(ctx, commands.RevokeProxyCommand{
		GrantID:        grantID,
		RevokedBy:      revokedBy,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey,
	})
}

func (h Handler) ResolveHolderHandler(
	ctx context.Context,
	meetingID string,
	grantorID string,
) (httptransport.ResolveHolderResponse, error) {
	now := time.Now().UTC()
	holder, err := h.Resolve.EffectiveHolder(ctx, meetingID, grantorID, now)
	if err != nil {
		return httptransport.ResolveHolderResponse{}, err
	}
	chain, err := h.Resolve.ChainOf(ctx, meetingID, grantorID, now)
	if err != nil {
		return httptransport.ResolveHolderResponse{}, err
	}
	return httptransport.ResolveHolderResponse{
		MeetingID:       meetingID,
		GrantorID:       grantorID,
		EffectiveHolder: holder,
		ChainLength:     len(chain),
	}, nil
}
