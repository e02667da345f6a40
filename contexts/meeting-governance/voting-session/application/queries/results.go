package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

// BallotView is a ballot shaped by the session's anonymity level. Internal
// sessions list who voted without the choice; secret sessions expose no
// per-ballot data at all.
type BallotView struct {
	BallotID    string
	ItemID      string
	VoterID     string
	Choice      entities.BallotChoice
	TotalWeight float64
	Round       int
}

type ResultsUseCase struct {
	Sessions ports.SessionRepository
	Logger   *slog.Logger
}

// Results returns the session with its items. For open and counting
// sessions the tally fields are still zero; only completed sessions carry
// decided results.
func (uc ResultsUseCase) Results(ctx context.Context, sessionID string) (entities.VotingSession, []entities.SessionItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
	}
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return entities.VotingSession{}, nil, err
	}
	items, err := uc.Sessions.ListItems(ctx, sessionID)
	if err != nil {
		return entities.VotingSession{}, nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Ordinal < items[j].Ordinal
	})
	return session, items, nil
}

// ListBallots returns the session's ballots filtered by anonymity.
func (uc ResultsUseCase) ListBallots(ctx context.Context, sessionID string) ([]BallotView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domainerrors.ErrInvalidSessionInput
	}
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Anonymity == entities.AnonymitySecret {
		return nil, domainerrors.ErrBallotsSealed
	}
	ballots, err := uc.Sessions.ListBallotsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ballots, func(i, j int) bool {
		if ballots[i].ItemID != ballots[j].ItemID {
			return ballots[i].ItemID < ballots[j].ItemID
		}
		return ballots[i].VoterID < ballots[j].VoterID
	})

	views := make([]BallotView, 0, len(ballots))
	for _, ballot := range ballots {
		view := BallotView{
			BallotID:    ballot.BallotID,
			ItemID:      ballot.ItemID,
			VoterID:     ballot.VoterID,
			TotalWeight: ballot.TotalWeight(),
			Round:       ballot.Round,
		}
		if session.Anonymity == entities.AnonymityPublic {
			view.Choice = ballot.Choice
		}
		views = append(views, view)
	}
	return views, nil
}
