package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	application "boardroom/contexts/meeting-governance/proxy-graph/application"
	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"
)

// GrantProxyCommand is the write-model input for delegating voting authority.
type GrantProxyCommand struct {
	MeetingID       string
	GrantorID       string
	HolderID        string
	Scope           string
	VotingWeight    float64
	MaxVotesAllowed int
	EffectiveFrom   time.Time
	EffectiveUntil  *time.Time
	CanSubDelegate  bool
	ParentGrantID   string
	IdempotencyKey  string
}

// GrantProxyResult reports the new grant plus the grant it superseded, if any.
type GrantProxyResult struct {
	Grant      entities.ProxyGrant
	Superseded *entities.ProxyGrant
	Replayed   bool
}

type RevokeProxyCommand struct {
	GrantID        string
	RevokedBy      string
	Reason         string
	IdempotencyKey string
}

// GrantUseCase orchestrates proxy grant writes while enforcing the graph
// invariants: no self-proxy, bounded chain depth, and at most one active
// grant per grantor at any instant.
type GrantUseCase struct {
	Grants         ports.GrantRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Grant creates a proxy grant, auto-revoking the grantor's previous active
// grant as one atomic unit. Sub-delegation chains inherit depth from the
// parent grant and are rejected past MaxChainDepth.
func (uc GrantUseCase) Grant(ctx context.Context, cmd GrantProxyCommand) (GrantProxyResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	meetingID := strings.TrimSpace(cmd.MeetingID)
	grantorID := strings.TrimSpace(cmd.GrantorID)
	holderID := strings.TrimSpace(cmd.HolderID)

	logger.Info("proxy grant processing started",
		"event", "proxy_grant_started",
		"module", "meeting-governance/proxy-graph",
		"layer", "application",
		"meeting_id", meetingID,
		"grantor_id", grantorID,
		"holder_id", holderID,
	)

	if meetingID == "" || grantorID == "" || holderID == "" {
		return GrantProxyResult{}, domainerrors.ErrInvalidGrantInput
	}
	if strings.EqualFold(grantorID, holderID) {
		logger.Warn("proxy grant rejected: self proxy",
			"event", "proxy_grant_self_rejected",
			"module", "meeting-governance/proxy-graph",
			"layer", "application",
			"meeting_id", meetingID,
			"grantor_id", grantorID,
		)
		return GrantProxyResult{}, domainerrors.ErrSelfProxy
	}
	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return GrantProxyResult{}, domainerrors.ErrIdempotencyKeyRequired
	}

	now := uc.now()
	requestHash := hashGrantCommand(cmd)
	if record, found, err := uc.Idempotency.Get(ctx, cmd.IdempotencyKey, now); err != nil {
		return GrantProxyResult{}, err
	} else if found {
		if record.RequestHash != requestHash {
			return GrantProxyResult{}, domainerrors.ErrIdempotencyConflict
		}
		grant, err := uc.Grants.GetGrant(ctx, record.GrantID)
		if err != nil {
			return GrantProxyResult{}, err
		}
		return GrantProxyResult{Grant: grant, Replayed: true}, nil
	}

	chainDepth := 1
	weight := cmd.VotingWeight
	parentID := strings.TrimSpace(cmd.ParentGrantID)
	if parentID != "" {
		parent, err := uc.Grants.GetGrant(ctx, parentID)
		if err != nil {
			return GrantProxyResult{}, err
		}
		if !parent.ActiveAt(now) {
			return GrantProxyResult{}, domainerrors.ErrParentGrantNotActive
		}
		if !parent.CanSubDelegate {
			return GrantProxyResult{}, domainerrors.ErrSubDelegationForbidden
		}
		if !strings.EqualFold(strings.TrimSpace(parent.HolderID), grantorID) {
			return GrantProxyResult{}, domainerrors.ErrInvalidGrantInput
		}
		chainDepth = parent.ChainDepth + 1
	}
	if chainDepth > entities.MaxChainDepth {
		logger.Warn("proxy grant rejected: chain too deep",
			"event", "proxy_grant_chain_rejected",
			"module", "meeting-governance/proxy-graph",
			"layer", "application",
			"meeting_id", meetingID,
			"grantor_id", grantorID,
			"chain_depth", chainDepth,
		)
		return GrantProxyResult{}, domainerrors.ErrChainTooDeep
	}
	// A grant carries the grantor's own conveyed authority. A sub-grant
	// never copies the parent's weight; the parent stays its own edge in
	// the holder's aggregation.
	if weight <= 0 {
		weight = 1.0
	}

	grantID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return GrantProxyResult{}, err
	}
	effectiveFrom := cmd.EffectiveFrom.UTC()
	if cmd.EffectiveFrom.IsZero() {
		effectiveFrom = now
	}
	grant := entities.ProxyGrant{
		GrantID:         grantID,
		MeetingID:       meetingID,
		GrantorID:       grantorID,
		HolderID:        holderID,
		Scope:           strings.TrimSpace(cmd.Scope),
		VotingWeight:    weight,
		MaxVotesAllowed: cmd.MaxVotesAllowed,
		EffectiveFrom:   effectiveFrom,
		EffectiveUntil:  normalizeUntil(cmd.EffectiveUntil),
		Status:          entities.GrantStatusActive,
		CanSubDelegate:  cmd.CanSubDelegate,
		ParentGrantID:   parentID,
		ChainDepth:      chainDepth,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	superseded, had, err := uc.Grants.SaveGrantSuperseding(ctx, grant, now)
	if err != nil {
		return GrantProxyResult{}, err
	}

	if had {
		if err := uc.appendGrantEvent(ctx, "proxy.revoked", superseded, now, map[string]any{
			"reason":        entities.RevocationReasonSuperseded,
			"superseded_by": grant.GrantID,
		}); err != nil {
			return GrantProxyResult{}, err
		}
	}
	if err := uc.appendGrantEvent(ctx, "proxy.granted", grant, now, nil); err != nil {
		return GrantProxyResult{}, err
	}
	if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         strings.TrimSpace(cmd.IdempotencyKey),
		RequestHash: requestHash,
		GrantID:     grant.GrantID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}); err != nil {
		return GrantProxyResult{}, err
	}

	logger.Info("proxy granted",
		"event", "proxy_granted",
		"module", "meeting-governance/proxy-graph",
		"layer", "application",
		"grant_id", grant.GrantID,
		"meeting_id", meetingID,
		"grantor_id", grantorID,
		"holder_id", holderID,
		"chain_depth", chainDepth,
		"superseded", had,
	)

	result := GrantProxyResult{Grant: grant}
	if had {
		result.Superseded = &superseded
	}
	return result, nil
}

// Revoke withdraws a grant. Revoking an already-revoked or expired grant is a
// no-op. Child sub-delegations stay active until their own window expires or
// they are revoked explicitly.
func (uc GrantUseCase) Revoke(ctx context.Context, cmd RevokeProxyCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	grantID := strings.TrimSpace(cmd.GrantID)
	if grantID == "" {
		return domainerrors.ErrInvalidGrantInput
	}

	now := uc.now()
	grant, err := uc.Grants.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if grant.Status != entities.GrantStatusActive {
		logger.Info("proxy revoke replayed on settled grant",
			"event", "proxy_revoke_noop",
			"module", "meeting-governance/proxy-graph",
			"layer", "application",
			"grant_id", grantID,
			"status", string(grant.Status),
		)
		return nil
	}

	grant.Status = entities.GrantStatusRevoked
	grant.RevokedBy = strings.TrimSpace(cmd.RevokedBy)
	grant.RevocationReason = strings.TrimSpace(cmd.Reason)
	grant.UpdatedAt = now
	if err := uc.Grants.SaveGrant(ctx, grant); err != nil {
		return err
	}
	if err := uc.appendGrantEvent(ctx, "proxy.revoked", grant, now, map[string]any{
		"reason":     grant.RevocationReason,
		"revoked_by": grant.RevokedBy,
	}); err != nil {
		return err
	}

	logger.Info("proxy revoked",
		"event", "proxy_revoked",
		"module", "meeting-governance/proxy-graph",
		"layer", "application",
		"grant_id", grantID,
		"meeting_id", grant.MeetingID,
		"grantor_id", grant.GrantorID,
	)
	return nil
}

// ExpireSweep transitions every active grant whose window elapsed to expired.
// Running it twice for the same instant changes nothing the second time.
func (uc GrantUseCase) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	logger := application.ResolveLogger(uc.Logger)
	expired, err := uc.Grants.ExpireActiveBefore(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	for _, grant := range expired {
		if err := uc.appendGrantEvent(ctx, "proxy.expired", grant, now.UTC(), nil); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		logger.Info("proxy grants expired",
			"event", "proxy_expire_sweep_completed",
			"module", "meeting-governance/proxy-graph",
			"layer", "application",
			"expired_count", len(expired),
		)
	}
	return len(expired), nil
}

// MarkVotesCast records that the holder exercised the listed grants for one
// ballot. Grants with a resolution-scoped budget transition to executed once
// the budget is used up.
func (uc GrantUseCase) MarkVotesCast(ctx context.Context, grantIDs []string) error {
	now := uc.now()
	for _, grantID := range grantIDs {
		grant, err := uc.Grants.GetGrant(ctx, strings.TrimSpace(grantID))
		if err != nil {
			return err
		}
		if grant.Status != entities.GrantStatusActive {
			continue
		}
		grant.VotesCast++
		grant.UpdatedAt = now
		if grant.Exhausted() {
			grant.Status = entities.GrantStatusExecuted
		}
		if err := uc.Grants.SaveGrant(ctx, grant); err != nil {
			return err
		}
		if grant.Status == entities.GrantStatusExecuted {
			if err := uc.appendGrantEvent(ctx, "proxy.executed", grant, now, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (uc GrantUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc GrantUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc GrantUseCase) appendGrantEvent(
	ctx context.Context,
	eventType string,
	grant entities.ProxyGrant,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	// Outbox is optional for pure read/test wiring, so nil is treated as no-op.
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"grant_id":    grant.GrantID,
		"meeting_id":  grant.MeetingID,
		"grantor_id":  grant.GrantorID,
		"holder_id":   grant.HolderID,
		"status":      string(grant.Status),
		"chain_depth": grant.ChainDepth,
		"weight":      grant.VotingWeight,
		"occurred_at": occurredAt.Format(time.RFC3339),
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := newProxyEnvelope(eventID, eventType, grant.MeetingID, occurredAt, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func normalizeUntil(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	until := value.UTC()
	return &until
}

func hashGrantCommand(cmd GrantProxyCommand) string {
	until := ""
	if cmd.EffectiveUntil != nil {
		until = cmd.EffectiveUntil.UTC().Format(time.RFC3339Nano)
	}
	payload := map[string]string{
		"meeting_id":      strings.TrimSpace(cmd.MeetingID),
		"grantor_id":      strings.TrimSpace(cmd.GrantorID),
		"holder_id":       strings.TrimSpace(cmd.HolderID),
		"scope":           strings.TrimSpace(cmd.Scope),
		"weight":          strconv.FormatFloat(cmd.VotingWeight, 'f', -1, 64),
		"max_votes":       strconv.Itoa(cmd.MaxVotesAllowed),
		"effective_until": until,
		"parent_grant_id": strings.TrimSpace(cmd.ParentGrantID),
		"op":              "grant_proxy",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
