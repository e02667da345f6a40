package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "boardroom/contexts/meeting-governance/role-registry/application"
	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/role-registry/domain/errors"
	"boardroom/contexts/meeting-governance/role-registry/ports"
)

// ProjectionUseCase maintains the role projection. Membership data is owned
// by an external directory; these commands only keep the local read model in
// step with it.
type ProjectionUseCase struct {
	Roles  ports.RoleRepository
	Clock  ports.Clock
	Logger *slog.Logger
}

type UpsertRoleCommand struct {
	MeetingID    string
	UserID       string
	RoleTag      string
	VotingWeight float64
	Capabilities []string
	Active       bool
}

func (uc ProjectionUseCase) UpsertRole(ctx context.Context, cmd UpsertRoleCommand) (entities.MeetingRole, error) {
	logger := application.ResolveLogger(uc.Logger)
	meetingID := strings.TrimSpace(cmd.MeetingID)
	userID := strings.TrimSpace(cmd.UserID)
	roleTag := strings.TrimSpace(cmd.RoleTag)
	if meetingID == "" || userID == "" || roleTag == "" {
		return entities.MeetingRole{}, domainerrors.ErrInvalidRoleInput
	}
	if cmd.VotingWeight < 0 {
		return entities.MeetingRole{}, domainerrors.ErrInvalidRoleInput
	}

	now := uc.now()
	role := entities.MeetingRole{
		MeetingID:    meetingID,
		UserID:       userID,
		RoleTag:      roleTag,
		VotingWeight: cmd.VotingWeight,
		Capabilities: cmd.Capabilities,
		Active:       cmd.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.Roles.UpsertRole(ctx, role); err != nil {
		return entities.MeetingRole{}, err
	}

	logger.Info("meeting role upserted",
		"event", "role_upserted",
		"module", "meeting-governance/role-registry",
		"layer", "application",
		"meeting_id", meetingID,
		"user_id", userID,
		"role_tag", roleTag,
	)
	return role, nil
}

func (uc ProjectionUseCase) DeactivateRole(ctx context.Context, meetingID string, userID string, roleTag string) error {
	logger := application.ResolveLogger(uc.Logger)
	meetingID = strings.TrimSpace(meetingID)
	userID = strings.TrimSpace(userID)
	roleTag = strings.TrimSpace(roleTag)
	if meetingID == "" || userID == "" || roleTag == "" {
		return domainerrors.ErrInvalidRoleInput
	}

	if err := uc.Roles.DeactivateRole(ctx, meetingID, userID, roleTag); err != nil {
		return err
	}

	logger.Info("meeting role deactivated",
		"event", "role_deactivated",
		"module", "meeting-governance/role-registry",
		"layer", "application",
		"meeting_id", meetingID,
		"user_id", userID,
		"role_tag", roleTag,
	)
	return nil
}

func (uc ProjectionUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
