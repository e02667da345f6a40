package queries

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	application "boardroom/contexts/meeting-governance/role-registry/application"
	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/role-registry/domain/errors"
	"boardroom/contexts/meeting-governance/role-registry/ports"
)

// WeightUseCase answers voting eligibility and base weight lookups.
// A participant may hold several roles in one meeting; the effective base
// weight is the highest weight among active roles that carry the vote
// capability, never a sum, so stacked titles do not multiply authority.
type WeightUseCase struct {
	Roles     ports.RoleRepository
	Directory ports.MembershipDirectory
	OrgID     string
	Logger    *slog.Logger
}

func (uc WeightUseCase) ResolveVotingWeight(ctx context.Context, meetingID string, userID string) (float64, bool, error) {
	logger := application.ResolveLogger(uc.Logger)
	meetingID = strings.TrimSpace(meetingID)
	userID = strings.TrimSpace(userID)
	if meetingID == "" || userID == "" {
		return 0, false, domainerrors.ErrInvalidRoleInput
	}

	if uc.Directory != nil {
		active, err := uc.Directory.IsActiveMember(ctx, uc.OrgID, userID)
		if err != nil {
			logger.Warn("membership directory lookup failed; falling back to role projection",
				"event", "role_directory_lookup_failed",
				"module", "meeting-governance/role-registry",
				"layer", "application",
				"meeting_id", meetingID,
				"user_id", userID,
				"error", err.Error(),
			)
		} else if !active {
			return 0, false, nil
		}
	}

	roles, err := uc.Roles.ListRolesByUser(ctx, meetingID, userID)
	if err != nil {
		return 0, false, err
	}

	weight := 0.0
	eligible := false
	for _, role := range roles {
		if !role.Active || !role.HasCapability(entities.CapabilityVote) {
			continue
		}
		eligible = true
		if role.VotingWeight > weight {
			weight = role.VotingWeight
		}
	}
	if !eligible {
		return 0, false, nil
	}
	return weight, true, nil
}

// ListEligibleVoters snapshots every voting-capable participant of a meeting.
// Voting sessions call this once at open time; later membership changes do
// not retroactively alter an open session's electorate.
func (uc WeightUseCase) ListEligibleVoters(ctx context.Context, meetingID string) ([]entities.EligibleVoter, error) {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		return nil, domainerrors.ErrInvalidRoleInput
	}

	roles, err := uc.Roles.ListRolesByMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]float64)
	for _, role := range roles {
		if !role.Active || !role.HasCapability(entities.CapabilityVote) {
			continue
		}
		if role.VotingWeight > byUser[role.UserID] {
			byUser[role.UserID] = role.VotingWeight
		}
	}

	voters := make([]entities.EligibleVoter, 0, len(byUser))
	for userID, weight := range byUser {
		voters = append(voters, entities.EligibleVoter{UserID: userID, Weight: weight})
	}
	sort.Slice(voters, func(i, j int) bool {
		return voters[i].UserID < voters[j].UserID
	})
	return voters, nil
}
