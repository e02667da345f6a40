package ports

import (
	"context"
	"time"

	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
)

type RoleRepository interface {
	UpsertRole(ctx context.Context, role entities.MeetingRole) error
	DeactivateRole(ctx context.Context, meetingID string, userID string, roleTag string) error
	ListRolesByUser(ctx context.Context, meetingID string, userID string) ([]entities.MeetingRole, error)
	ListRolesByMeeting(ctx context.Context, meetingID string) ([]entities.MeetingRole, error)
}

// MembershipDirectory is the external identity collaborator. Nil wiring means
// the projection alone is authoritative (test and single-tenant deployments).
type MembershipDirectory interface {
	IsActiveMember(ctx context.Context, orgID string, userID string) (bool, error)
}

type Clock interface {
	Now() time.Time
}
