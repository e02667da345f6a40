package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/proxy-graph/domain/errors"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"
)

// ResolveUseCase walks delegation chains. Traversal is iterative with a hop
// counter, never recursive, so a corrupted graph cannot blow the stack.
type ResolveUseCase struct {
	Grants ports.GrantRepository
	Logger *slog.Logger
}

// EffectiveHolder walks the active chain from grantor at the given instant
// and returns the identity that ultimately casts the grantor's ballot. A
// grantor with no active grant is their own effective holder. The walk is
// capped at one hop past the last grant's chain depth; exceeding the cap
// means the stored graph contains a cycle the write path should have made
// impossible, and the resolution is rejected rather than guessed.
func (uc ResolveUseCase) EffectiveHolder(ctx context.Context, meetingID string, grantorID string, at time.Time) (string, error) {
	meetingID = strings.TrimSpace(meetingID)
	current := strings.TrimSpace(grantorID)
	if meetingID == "" || current == "" {
		return "", domainerrors.ErrInvalidGrantInput
	}

	at = at.UTC()
	seen := map[string]bool{current: true}
	hops := 0
	hopCap := entities.MaxChainDepth + 1

	for {
		grant, found, err := uc.Grants.GetActiveGrantByGrantor(ctx, meetingID, current)
		if err != nil {
			return "", err
		}
		if !found || !grant.ActiveAt(at) || grant.Exhausted() {
			return current, nil
		}

		hops++
		if hops > hopCap {
			return "", domainerrors.ErrCycleDetected
		}
		if seen[grant.HolderID] {
			return "", domainerrors.ErrCycleDetected
		}
		seen[grant.HolderID] = true
		current = strings.TrimSpace(grant.HolderID)
	}
}

// HeldGrants returns every grantor whose authority resolves to holderID at
// the given instant, with the weight each chain conveys. The voting session
// aggregates these into the holder's single ballot.
func (uc ResolveUseCase) HeldGrants(ctx context.Context, meetingID string, holderID string, at time.Time) ([]entities.HeldGrant, error) {
	meetingID = strings.TrimSpace(meetingID)
	holderID = strings.TrimSpace(holderID)
	if meetingID == "" || holderID == "" {
		return nil, domainerrors.ErrInvalidGrantInput
	}

	grants, err := uc.Grants.ListGrantsByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	at = at.UTC()
	held := make([]entities.HeldGrant, 0)
	for _, grant := range grants {
		if !grant.ActiveAt(at) || grant.Exhausted() {
			continue
		}
		effective, err := uc.EffectiveHolder(ctx, meetingID, grant.GrantorID, at)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(effective, holderID) {
			continue
		}
		held = append(held, entities.HeldGrant{
			GrantID:   grant.GrantID,
			GrantorID: grant.GrantorID,
			Weight:    grant.VotingWeight,
		})
	}
	sort.Slice(held, func(i, j int) bool {
		return held[i].GrantorID < held[j].GrantorID
	})
	return held, nil
}

// ChainOf returns the grant path from grantor to the effective holder, for
// audit and debugging reads.
func (uc ResolveUseCase) ChainOf(ctx context.Context, meetingID string, grantorID string, at time.Time) ([]entities.ProxyGrant, error) {
	meetingID = strings.TrimSpace(meetingID)
	current := strings.TrimSpace(grantorID)
	if meetingID == "" || current == "" {
		return nil, domainerrors.ErrInvalidGrantInput
	}

	at = at.UTC()
	seen := map[string]bool{current: true}
	chain := make([]entities.ProxyGrant, 0)

	for hops := 0; ; hops++ {
		if hops > entities.MaxChainDepth+1 {
			return nil, domainerrors.ErrCycleDetected
		}
		grant, found, err := uc.Grants.GetActiveGrantByGrantor(ctx, meetingID, current)
		if err != nil {
			return nil, err
		}
		if !found || !grant.ActiveAt(at) || grant.Exhausted() {
			return chain, nil
		}
		if seen[grant.HolderID] {
			return nil, domainerrors.ErrCycleDetected
		}
		seen[grant.HolderID] = true
		chain = append(chain, grant)
		current = strings.TrimSpace(grant.HolderID)
	}
}
