package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/voting-session/application"
	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/voting-session/domain/errors"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

type OpenSessionItem struct {
	ResolutionID string
	Title        string
}

type OpenSessionCommand struct {
	MeetingID            string
	WorkflowInstanceID   string
	Title                string
	Items                []OpenSessionItem
	Anonymity            entities.AnonymityLevel
	QuorumRequired       int
	PassThresholdPercent float64
	Round                int
	Deadline             *time.Time
	OpenedBy             string
}

type CastBallotCommand struct {
	SessionID      string
	ItemID         string
	VoterID        string
	Choice         entities.BallotChoice
	IdempotencyKey string
}

type CastResult struct {
	BallotID    string
	OwnWeight   float64
	ProxyWeight float64
	GrantIDs    []string
	Replayed    bool
}

type CloseSessionCommand struct {
	SessionID string
	ClosedBy  string
}

type CancelSessionCommand struct {
	SessionID   string
	CancelledBy string
	Reason      string
}

// SessionUseCase owns the voting session lifecycle. Cross-module effects
// run through the Gate, Roles, Proxies, and Resolutions ports so the module
// stays decoupled from its governance neighbors.
type SessionUseCase struct {
	Sessions       ports.SessionRepository
	Idempotency    ports.IdempotencyStore
	Gate           ports.WorkflowGate
	Roles          ports.RoleDirectory
	Proxies        ports.ProxyResolver
	Resolutions    ports.ResolutionRecorder
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// OpenSession creates a session and attaches it to the meeting workflow.
// The workflow gate is claimed before anything is persisted; if persistence
// fails the claim is released so the stage does not stay locked.
func (uc SessionUseCase) OpenSession(ctx context.Context, cmd OpenSessionCommand) (entities.VotingSession, []entities.SessionItem, error) {
	logger := application.ResolveLogger(uc.Logger)

	meetingID := strings.TrimSpace(cmd.MeetingID)
	instanceID := strings.TrimSpace(cmd.WorkflowInstanceID)
	openedBy := strings.TrimSpace(cmd.OpenedBy)
	if meetingID == "" || instanceID == "" || openedBy == "" || len(cmd.Items) == 0 {
		return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
	}
	if cmd.QuorumRequired < 0 || cmd.PassThresholdPercent < 0 || cmd.PassThresholdPercent > 100 {
		return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
	}
	anonymity := cmd.Anonymity
	if anonymity == "" {
		anonymity = entities.AnonymityPublic
	}
	if !entities.ValidAnonymity(anonymity) {
		return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
	}
	round := cmd.Round
	if round < 1 {
		round = 1
	}

	sessionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.VotingSession{}, nil, err
	}
	now := uc.Clock.Now().UTC()
	if cmd.Deadline != nil && !cmd.Deadline.After(now) {
		return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
	}

	// The electorate is frozen at open time; the close-time consistency
	// guard measures every item against this snapshot.
	voters, err := uc.Roles.ListEligibleVoters(ctx, meetingID)
	if err != nil {
		return entities.VotingSession{}, nil, err
	}

	session := entities.VotingSession{
		SessionID:            sessionID,
		MeetingID:            meetingID,
		WorkflowInstanceID:   instanceID,
		Title:                strings.TrimSpace(cmd.Title),
		Status:               entities.SessionStatusOpen,
		Anonymity:            anonymity,
		QuorumRequired:       cmd.QuorumRequired,
		EligibleVoterCount:   len(voters),
		PassThresholdPercent: cmd.PassThresholdPercent,
		Round:                round,
		Deadline:             cmd.Deadline,
		OpenedBy:             openedBy,
		OpenedAt:             now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	items := make([]entities.SessionItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			return entities.VotingSession{}, nil, domainerrors.ErrInvalidSessionInput
		}
		itemID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return entities.VotingSession{}, nil, err
		}
		items = append(items, entities.SessionItem{
			ItemID:       itemID,
			SessionID:    sessionID,
			ResolutionID: strings.TrimSpace(item.ResolutionID),
			Title:        title,
			Ordinal:      i + 1,
		})
	}

	if err := uc.Gate.BeginVoting(ctx, instanceID, sessionID); err != nil {
		return entities.VotingSession{}, nil, err
	}
	if err := uc.Sessions.CreateSession(ctx, session, items); err != nil {
		if endErr := uc.Gate.EndVoting(ctx, instanceID, sessionID); endErr != nil {
			logger.ErrorContext(ctx, "gate release failed after create error",
				slog.String("event", "voting_gate_release_failed"),
				slog.String("module", "voting-session"),
				slog.String("layer", "application"),
				slog.String("session_id", sessionID),
				slog.String("error", endErr.Error()),
			)
		}
		return entities.VotingSession{}, nil, err
	}
	if err := uc.emit(ctx, "voting.session_opened", session.MeetingID, now, map[string]any{
		"session_id":  session.SessionID,
		"meeting_id":  session.MeetingID,
		"instance_id": session.WorkflowInstanceID,
		"item_count":  len(items),
		"anonymity":   string(session.Anonymity),
		"round":       session.Round,
	}); err != nil {
		return entities.VotingSession{}, nil, err
	}

	logger.InfoContext(ctx, "voting session opened",
		slog.String("event", "voting_session_opened"),
		slog.String("module", "voting-session"),
		slog.String("layer", "application"),
		slog.String("session_id", session.SessionID),
		slog.String("meeting_id", session.MeetingID),
		slog.Int("item_count", len(items)),
	)
	return session, items, nil
}

// CastBallot records a voter's position on one item. A voter holding active
// proxies casts exactly one ballot whose weight aggregates every represented
// grantor; a holder with no seat of their own votes only the grants they
// carry; a voter who delegated away cannot cast at all. The repository's
// uniqueness rule on (item, voter, round) decides races between duplicate
// submissions.
func (uc SessionUseCase) CastBallot(ctx context.Context, cmd CastBallotCommand) (CastResult, error) {
	logger := application.ResolveLogger(uc.Logger)

	sessionID := strings.TrimSpace(cmd.SessionID)
	itemID := strings.TrimSpace(cmd.ItemID)
	voterID := strings.TrimSpace(cmd.VoterID)
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if sessionID == "" || itemID == "" || voterID == "" || !entities.ValidChoice(cmd.Choice) {
		return CastResult{}, domainerrors.ErrInvalidSessionInput
	}
	if key == "" {
		return CastResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	requestHash := hashCastCommand(cmd)
	if record, found, err := uc.Idempotency.GetIdempotency(ctx, key); err != nil {
		return CastResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return CastResult{}, domainerrors.ErrIdempotencyConflict
		}
		return CastResult{BallotID: record.BallotID, Replayed: true}, nil
	}

	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return CastResult{}, err
	}
	if session.Status != entities.SessionStatusOpen {
		return CastResult{}, domainerrors.ErrSessionNotOpen
	}
	now := uc.Clock.Now().UTC()
	if session.PastDeadline(now) {
		return CastResult{}, domainerrors.ErrDeadlinePassed
	}
	item, err := uc.Sessions.GetItem(ctx, itemID)
	if err != nil {
		return CastResult{}, err
	}
	if item.SessionID != sessionID {
		return CastResult{}, domainerrors.ErrItemNotFound
	}

	ownWeight, eligible, err := uc.Roles.ResolveVotingWeight(ctx, session.MeetingID, voterID)
	if err != nil {
		return CastResult{}, err
	}
	holder, err := uc.Proxies.EffectiveHolder(ctx, session.MeetingID, voterID, now)
	if err != nil {
		return CastResult{}, err
	}
	if holder != voterID {
		return CastResult{}, domainerrors.ErrVoteDelegated
	}
	held, err := uc.Proxies.HeldGrants(ctx, session.MeetingID, voterID, now)
	if err != nil {
		return CastResult{}, err
	}
	// A holder without a seat of their own may still vote the proxies they
	// carry; such a ballot casts with zero own weight.
	if !eligible {
		if len(held) == 0 {
			return CastResult{}, domainerrors.ErrVoterNotEligible
		}
		ownWeight = 0
	}
	proxyWeight := 0.0
	grantIDs := make([]string, 0, len(held))
	for _, grant := range held {
		proxyWeight += grant.Weight
		grantIDs = append(grantIDs, grant.GrantID)
	}
	sort.Strings(grantIDs)

	ballotID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastResult{}, err
	}
	ballot := entities.Ballot{
		BallotID:       ballotID,
		SessionID:      sessionID,
		ItemID:         itemID,
		VoterID:        voterID,
		Choice:         cmd.Choice,
		OwnWeight:      ownWeight,
		ProxyWeight:    proxyWeight,
		Round:          session.Round,
		IdempotencyKey: key,
		ProxyGrantIDs:  grantIDs,
		CastAt:         now,
	}
	if err := uc.Sessions.SaveBallot(ctx, ballot); err != nil {
		if errors.Is(err, domainerrors.ErrDuplicateBallot) {
			return uc.recoverDuplicateCast(ctx, cmd, session, key, requestHash, now)
		}
		return CastResult{}, err
	}
	for _, grantID := range grantIDs {
		if err := uc.Proxies.MarkVotesCast(ctx, grantID); err != nil {
			logger.WarnContext(ctx, "proxy vote accounting failed",
				slog.String("event", "voting_proxy_accounting_failed"),
				slog.String("module", "voting-session"),
				slog.String("layer", "application"),
				slog.String("grant_id", grantID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := uc.Idempotency.PutIdempotency(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		BallotID:    ballotID,
		ExpiresAt:   now.Add(uc.IdempotencyTTL),
	}); err != nil {
		return CastResult{}, err
	}

	eventData := map[string]any{
		"session_id":   sessionID,
		"item_id":      itemID,
		"ballot_id":    ballotID,
		"round":        session.Round,
		"total_weight": ballot.TotalWeight(),
		"proxy_count":  len(grantIDs),
	}
	// Secret sessions keep voter identity and choice out of the event stream.
	if session.Anonymity != entities.AnonymitySecret {
		eventData["voter_id"] = voterID
		eventData["choice"] = string(cmd.Choice)
	}
	if err := uc.emit(ctx, "voting.ballot_cast", session.MeetingID, now, eventData); err != nil {
		return CastResult{}, err
	}

	logger.InfoContext(ctx, "ballot cast",
		slog.String("event", "voting_ballot_cast"),
		slog.String("module", "voting-session"),
		slog.String("layer", "application"),
		slog.String("session_id", sessionID),
		slog.String("item_id", itemID),
		slog.Int("proxy_count", len(grantIDs)),
	)
	return CastResult{
		BallotID:    ballotID,
		OwnWeight:   ownWeight,
		ProxyWeight: proxyWeight,
		GrantIDs:    grantIDs,
	}, nil
}

// recoverDuplicateCast handles a retry whose idempotency record was lost
// between the ballot insert and the record write. The key stored on the
// ballot row identifies the original cast; anything else is a real duplicate.
func (uc SessionUseCase) recoverDuplicateCast(ctx context.Context, cmd CastBallotCommand, session entities.VotingSession, key, requestHash string, now time.Time) (CastResult, error) {
	ballots, err := uc.Sessions.ListBallotsByItem(ctx, strings.TrimSpace(cmd.ItemID))
	if err != nil {
		return CastResult{}, err
	}
	voterID := strings.TrimSpace(cmd.VoterID)
	for _, existing := range ballots {
		if existing.VoterID != voterID || existing.Round != session.Round {
			continue
		}
		if existing.IdempotencyKey != key || existing.Choice != cmd.Choice {
			return CastResult{}, domainerrors.ErrDuplicateBallot
		}
		if err := uc.Idempotency.PutIdempotency(ctx, ports.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			BallotID:    existing.BallotID,
			ExpiresAt:   now.Add(uc.IdempotencyTTL),
		}); err != nil {
			return CastResult{}, err
		}
		return CastResult{
			BallotID:    existing.BallotID,
			OwnWeight:   existing.OwnWeight,
			ProxyWeight: existing.ProxyWeight,
			GrantIDs:    existing.ProxyGrantIDs,
			Replayed:    true,
		}, nil
	}
	return CastResult{}, domainerrors.ErrDuplicateBallot
}

// CloseSession tallies and completes a session. The path is re-entrant: an
// open session moves to counting first, and a session stuck in counting
// after a tally failure can be closed again to retry. A completed session
// returns its items unchanged.
func (uc SessionUseCase) CloseSession(ctx context.Context, cmd CloseSessionCommand) ([]entities.SessionItem, error) {
	logger := application.ResolveLogger(uc.Logger)

	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return nil, domainerrors.ErrInvalidSessionInput
	}
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case entities.SessionStatusCompleted:
		return uc.Sessions.ListItems(ctx, sessionID)
	case entities.SessionStatusCancelled:
		return nil, domainerrors.ErrSessionSettled
	case entities.SessionStatusOpen:
		now := uc.Clock.Now().UTC()
		if err := uc.Sessions.UpdateSessionStatus(ctx, sessionID, entities.SessionStatusOpen, entities.SessionStatusCounting, nil, now); err != nil {
			return nil, err
		}
	}

	items, err := uc.Sessions.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := uc.Clock.Now().UTC()
	tallied := make([]entities.SessionItem, 0, len(items))
	for _, item := range items {
		ballots, err := uc.Sessions.ListBallotsByItem(ctx, item.ItemID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrTallyFailed, err)
		}
		item.ForWeight, item.AgainstWeight, item.AbstainWeight = 0, 0, 0
		item.VoterCount = 0
		for _, ballot := range ballots {
			// Absent ballots record the roll call only.
			switch ballot.Choice {
			case entities.ChoiceFor:
				item.ForWeight += ballot.TotalWeight()
			case entities.ChoiceAgainst:
				item.AgainstWeight += ballot.TotalWeight()
			case entities.ChoiceAbstain:
				item.AbstainWeight += ballot.TotalWeight()
			case entities.ChoiceAbsent:
				continue
			}
			item.VoterCount++
		}
		// More participants than the open-time electorate means ballots were
		// forged or misrouted; refuse to certify and leave the session in
		// counting for investigation.
		if item.VoterCount > session.EligibleVoterCount {
			return nil, fmt.Errorf("%w: item %s has %d ballots for %d eligible voters",
				domainerrors.ErrTallyFailed, item.ItemID, item.VoterCount, session.EligibleVoterCount)
		}
		item.QuorumMet = item.VoterCount >= session.QuorumRequired
		item.Passed = item.Passes(session.QuorumRequired, session.PassThresholdPercent)
		item.Decided = true
		tallied = append(tallied, item)
	}

	// Outcomes land in the registry before the session completes; a failure
	// here leaves the session in counting so a retry can finish the job.
	for _, item := range tallied {
		if item.ResolutionID == "" {
			continue
		}
		if err := uc.Resolutions.RecordOutcome(ctx, ports.OutcomeRecord{
			ResolutionID:  item.ResolutionID,
			Round:         session.Round,
			SessionID:     sessionID,
			ForWeight:     item.ForWeight,
			AgainstWeight: item.AgainstWeight,
			AbstainWeight: item.AbstainWeight,
			Passed:        item.Passed,
		}); err != nil {
			logger.ErrorContext(ctx, "outcome recording failed",
				slog.String("event", "voting_outcome_record_failed"),
				slog.String("module", "voting-session"),
				slog.String("layer", "application"),
				slog.String("session_id", sessionID),
				slog.String("resolution_id", item.ResolutionID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrTallyFailed, err)
		}
	}
	for _, item := range tallied {
		if err := uc.Sessions.SaveItemTally(ctx, item); err != nil {
			return nil, fmt.Errorf("%w: %w", domainerrors.ErrTallyFailed, err)
		}
	}

	closedAt := now
	if err := uc.Sessions.UpdateSessionStatus(ctx, sessionID, entities.SessionStatusCounting, entities.SessionStatusCompleted, &closedAt, now); err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return uc.Sessions.ListItems(ctx, sessionID)
		}
		return nil, err
	}
	if err := uc.Gate.EndVoting(ctx, session.WorkflowInstanceID, sessionID); err != nil {
		logger.ErrorContext(ctx, "gate release failed after close",
			slog.String("event", "voting_gate_release_failed"),
			slog.String("module", "voting-session"),
			slog.String("layer", "application"),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	results := make([]map[string]any, 0, len(tallied))
	for _, item := range tallied {
		results = append(results, map[string]any{
			"item_id":        item.ItemID,
			"resolution_id":  item.ResolutionID,
			"for_weight":     item.ForWeight,
			"against_weight": item.AgainstWeight,
			"abstain_weight": item.AbstainWeight,
			"voter_count":    item.VoterCount,
			"quorum_met":     item.QuorumMet,
			"passed":         item.Passed,
		})
	}
	if err := uc.emit(ctx, "voting.session_closed", session.MeetingID, now, map[string]any{
		"session_id": sessionID,
		"meeting_id": session.MeetingID,
		"round":      session.Round,
		"items":      results,
	}); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "voting session closed",
		slog.String("event", "voting_session_closed"),
		slog.String("module", "voting-session"),
		slog.String("layer", "application"),
		slog.String("session_id", sessionID),
		slog.Int("item_count", len(tallied)),
	)
	return tallied, nil
}

// CancelSession abandons an open session without counting. Once counting
// has started the session must be closed instead.
func (uc SessionUseCase) CancelSession(ctx context.Context, cmd CancelSessionCommand) error {
	logger := application.ResolveLogger(uc.Logger)

	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return domainerrors.ErrInvalidSessionInput
	}
	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == entities.SessionStatusCancelled {
		return nil
	}
	if session.Status != entities.SessionStatusOpen {
		return domainerrors.ErrSessionNotOpen
	}

	now := uc.Clock.Now().UTC()
	closedAt := now
	if err := uc.Sessions.UpdateSessionStatus(ctx, sessionID, entities.SessionStatusOpen, entities.SessionStatusCancelled, &closedAt, now); err != nil {
		return err
	}
	if err := uc.Gate.EndVoting(ctx, session.WorkflowInstanceID, sessionID); err != nil {
		logger.ErrorContext(ctx, "gate release failed after cancel",
			slog.String("event", "voting_gate_release_failed"),
			slog.String("module", "voting-session"),
			slog.String("layer", "application"),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	if err := uc.emit(ctx, "voting.session_cancelled", session.MeetingID, now, map[string]any{
		"session_id":   sessionID,
		"meeting_id":   session.MeetingID,
		"cancelled_by": strings.TrimSpace(cmd.CancelledBy),
		"reason":       strings.TrimSpace(cmd.Reason),
	}); err != nil {
		return err
	}

	logger.InfoContext(ctx, "voting session cancelled",
		slog.String("event", "voting_session_cancelled"),
		slog.String("module", "voting-session"),
		slog.String("layer", "application"),
		slog.String("session_id", sessionID),
	)
	return nil
}

// SweepDeadlines flags open sessions whose deadline has passed. The deadline
// only stops further ballots; the session stays open until someone authorized
// closes it, so the sweep emits a notification event and nothing more. Each
// session is flagged once.
func (uc SessionUseCase) SweepDeadlines(ctx context.Context, now time.Time) (int, error) {
	at := now.UTC()
	sessions, err := uc.Sessions.ListOpenSessionsPastDeadline(ctx, at)
	if err != nil {
		return 0, err
	}
	notified := 0
	for _, session := range sessions {
		if err := uc.emit(ctx, "voting.deadline_reached", session.MeetingID, at, map[string]any{
			"session_id": session.SessionID,
			"meeting_id": session.MeetingID,
			"deadline":   session.Deadline,
			"round":      session.Round,
		}); err != nil {
			return notified, err
		}
		if err := uc.Sessions.MarkDeadlineNotified(ctx, session.SessionID, at); err != nil {
			return notified, err
		}
		notified++
	}
	return notified, nil
}

func (uc SessionUseCase) emit(ctx context.Context, eventType string, meetingID string, occurredAt time.Time, data map[string]any) error {
	if uc.Outbox == nil {
		return nil
	}
	envelope, err := newSessionEnvelope(ctx, uc.IDGen, eventType, meetingID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func hashCastCommand(cmd CastBallotCommand) string {
	payload, _ := json.Marshal(map[string]string{
		"session_id": strings.TrimSpace(cmd.SessionID),
		"item_id":    strings.TrimSpace(cmd.ItemID),
		"voter_id":   strings.TrimSpace(cmd.VoterID),
		"choice":     string(cmd.Choice),
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
