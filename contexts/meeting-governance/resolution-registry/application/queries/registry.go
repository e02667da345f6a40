package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
	"boardroom/contexts/meeting-governance/resolution-registry/ports"
)

type RegistryUseCase struct {
	Resolutions ports.ResolutionRepository
	Logger      *slog.Logger
}

func (uc RegistryUseCase) GetResolution(ctx context.Context, resolutionID string) (entities.Resolution, error) {
	resolutionID = strings.TrimSpace(resolutionID)
	if resolutionID == "" {
		return entities.Resolution{}, domainerrors.ErrInvalidResolutionInput
	}
	return uc.Resolutions.GetResolution(ctx, resolutionID)
}

// ListByMeeting returns the meeting's resolutions in proposal order.
func (uc RegistryUseCase) ListByMeeting(ctx context.Context, meetingID string) ([]entities.Resolution, error) {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return nil, domainerrors.ErrInvalidResolutionInput
	}
	resolutions, err := uc.Resolutions.ListResolutionsByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(resolutions, func(i, j int) bool {
		return resolutions[i].CreatedAt.Before(resolutions[j].CreatedAt)
	})
	return resolutions, nil
}

// History returns every recorded round outcome for one resolution.
func (uc RegistryUseCase) History(ctx context.Context, resolutionID string) ([]entities.RoundOutcome, error) {
	resolutionID = strings.TrimSpace(resolutionID)
	if resolutionID == "" {
		return nil, domainerrors.ErrInvalidResolutionInput
	}
	if _, err := uc.Resolutions.GetResolution(ctx, resolutionID); err != nil {
		return nil, err
	}
	outcomes, err := uc.Resolutions.ListRoundOutcomes(ctx, resolutionID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Round < outcomes[j].Round
	})
	return outcomes, nil
}
